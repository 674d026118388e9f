package crypto

import "math/big"

// secp256k1 curve parameters. Recovery is implemented directly over math/big
// rather than crypto/elliptic, since elliptic.CurveParams.ScalarMult panics
// for curves (like secp256k1) whose order does not satisfy its invariants.
var (
	secp256k1P, _  = new(big.Int).SetString("fffffffffffffffffffffffffffffffffffffffffffffffffffffffefffffc2f", 16)
	secp256k1N, _  = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
	secp256k1Gx, _ = new(big.Int).SetString("79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798", 16)
	secp256k1Gy, _ = new(big.Int).SetString("483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8", 16)
	secp256k1B     = big.NewInt(7)
)

// S256N returns the secp256k1 curve order.
func S256N() *big.Int { return new(big.Int).Set(secp256k1N) }

// computeY returns y such that y^2 = x^3 + 7 (mod p), or nil if x is not on
// the curve. p ≡ 3 (mod 4), so the square root is x3^((p+1)/4).
func computeY(x *big.Int) *big.Int {
	x3 := new(big.Int).Mul(x, x)
	x3.Mod(x3, secp256k1P)
	x3.Mul(x3, x)
	x3.Mod(x3, secp256k1P)
	x3.Add(x3, secp256k1B)
	x3.Mod(x3, secp256k1P)

	exp := new(big.Int).Add(secp256k1P, big.NewInt(1))
	exp.Rsh(exp, 2)
	y := new(big.Int).Exp(x3, exp, secp256k1P)

	y2 := new(big.Int).Mul(y, y)
	y2.Mod(y2, secp256k1P)
	if y2.Cmp(x3) != 0 {
		return nil
	}
	return y
}

func pointAdd(x1, y1, x2, y2 *big.Int) (*big.Int, *big.Int) {
	if x1.Sign() == 0 && y1.Sign() == 0 {
		return new(big.Int).Set(x2), new(big.Int).Set(y2)
	}
	if x2.Sign() == 0 && y2.Sign() == 0 {
		return new(big.Int).Set(x1), new(big.Int).Set(y1)
	}
	if x1.Cmp(x2) == 0 && y1.Cmp(y2) == 0 {
		return pointDouble(x1, y1)
	}
	if x1.Cmp(x2) == 0 {
		return new(big.Int), new(big.Int)
	}
	p := secp256k1P
	dy := new(big.Int).Sub(y2, y1)
	dy.Mod(dy, p)
	dx := new(big.Int).Sub(x2, x1)
	dx.Mod(dx, p)
	dxInv := new(big.Int).ModInverse(dx, p)
	if dxInv == nil {
		return new(big.Int), new(big.Int)
	}
	slope := new(big.Int).Mul(dy, dxInv)
	slope.Mod(slope, p)
	x3 := new(big.Int).Mul(slope, slope)
	x3.Sub(x3, x1)
	x3.Sub(x3, x2)
	x3.Mod(x3, p)
	y3 := new(big.Int).Sub(x1, x3)
	y3.Mul(y3, slope)
	y3.Sub(y3, y1)
	y3.Mod(y3, p)
	return x3, y3
}

func pointDouble(x1, y1 *big.Int) (*big.Int, *big.Int) {
	if y1.Sign() == 0 {
		return new(big.Int), new(big.Int)
	}
	p := secp256k1P
	x1sq := new(big.Int).Mul(x1, x1)
	x1sq.Mod(x1sq, p)
	num := new(big.Int).Mul(big.NewInt(3), x1sq)
	num.Mod(num, p)
	den := new(big.Int).Mul(big.NewInt(2), y1)
	den.Mod(den, p)
	denInv := new(big.Int).ModInverse(den, p)
	if denInv == nil {
		return new(big.Int), new(big.Int)
	}
	slope := new(big.Int).Mul(num, denInv)
	slope.Mod(slope, p)
	x3 := new(big.Int).Mul(slope, slope)
	x3.Sub(x3, new(big.Int).Mul(big.NewInt(2), x1))
	x3.Mod(x3, p)
	y3 := new(big.Int).Sub(x1, x3)
	y3.Mul(y3, slope)
	y3.Sub(y3, y1)
	y3.Mod(y3, p)
	return x3, y3
}

func scalarMult(px, py, k *big.Int) (*big.Int, *big.Int) {
	scalar := new(big.Int).Mod(k, secp256k1N)
	if scalar.Sign() == 0 {
		return new(big.Int), new(big.Int)
	}
	rx, ry := new(big.Int), new(big.Int)
	bx, by := new(big.Int).Set(px), new(big.Int).Set(py)
	for i := scalar.BitLen() - 1; i >= 0; i-- {
		rx, ry = pointDouble(rx, ry)
		if scalar.Bit(i) == 1 {
			rx, ry = pointAdd(rx, ry, bx, by)
		}
	}
	return rx, ry
}

// verify checks an ECDSA signature against a recovered public key, used to
// reject the wrong-parity candidate during recovery.
func verify(hash []byte, r, s, qx, qy *big.Int) bool {
	n := secp256k1N
	if r.Sign() <= 0 || r.Cmp(n) >= 0 {
		return false
	}
	if s.Sign() <= 0 || s.Cmp(n) >= 0 {
		return false
	}
	e := new(big.Int).SetBytes(hash)
	sInv := new(big.Int).ModInverse(s, n)
	if sInv == nil {
		return false
	}
	u1 := new(big.Int).Mul(e, sInv)
	u1.Mod(u1, n)
	u2 := new(big.Int).Mul(r, sInv)
	u2.Mod(u2, n)

	x1, y1 := scalarMult(secp256k1Gx, secp256k1Gy, u1)
	x2, y2 := scalarMult(qx, qy, u2)
	rx, _ := pointAdd(x1, y1, x2, y2)
	rx.Mod(rx, n)
	return rx.Cmp(r) == 0
}

// recoverPubkey recovers the uncompressed public key (65 bytes, 0x04 prefix)
// from a message hash and an ECDSA signature (r, s, recovery id v ∈ {0,1}).
func recoverPubkey(hash []byte, r, s *big.Int, v byte) ([]byte, error) {
	if v > 1 {
		return nil, errNoRecovery
	}
	x := new(big.Int).Set(r)
	if x.Cmp(secp256k1P) >= 0 {
		return nil, errNoRecovery
	}
	y := computeY(x)
	if y == nil {
		return nil, errNoRecovery
	}
	if y.Bit(0) != uint(v&1) {
		y.Sub(secp256k1P, y)
	}

	rInv := new(big.Int).ModInverse(r, secp256k1N)
	if rInv == nil {
		return nil, errNoRecovery
	}
	e := new(big.Int).SetBytes(hash)

	sRx, sRy := scalarMult(x, y, s)
	eGx, eGy := scalarMult(secp256k1Gx, secp256k1Gy, e)
	negEGy := new(big.Int).Sub(secp256k1P, eGy)
	negEGy.Mod(negEGy, secp256k1P)

	diffX, diffY := pointAdd(sRx, sRy, eGx, negEGy)
	qx, qy := scalarMult(diffX, diffY, rInv)
	if qx.Sign() == 0 && qy.Sign() == 0 {
		return nil, errNoRecovery
	}
	if !verify(hash, r, s, qx, qy) {
		return nil, errNoRecovery
	}

	pub := make([]byte, 65)
	pub[0] = 0x04
	xBytes := qx.Bytes()
	yBytes := qy.Bytes()
	copy(pub[1+32-len(xBytes):33], xBytes)
	copy(pub[33+32-len(yBytes):65], yBytes)
	return pub, nil
}

// ValidateSignatureValues reports whether r, s are within the curve order
// (and, if homestead is true, whether s is in the lower half of the order
// per EIP-2).
func ValidateSignatureValues(v byte, r, s *big.Int, homestead bool) bool {
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return false
	}
	if r.Cmp(secp256k1N) >= 0 || s.Cmp(secp256k1N) >= 0 {
		return false
	}
	if homestead {
		halfN := new(big.Int).Rsh(secp256k1N, 1)
		if s.Cmp(halfN) > 0 {
			return false
		}
	}
	return v == 0 || v == 1
}
