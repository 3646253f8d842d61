package legacy

// Corrected Block TEA, as used by the radio protocol. The round count is
// pinned to 6 instead of the reference 6+52/n; the airborne units do the
// same, and interoperability requires matching them bit for bit.

const (
	bteaDelta  = 0x9e3779b9
	bteaRounds = 6
)

func bteaMX(y, z, sum, p, e uint32, key *[4]uint32) uint32 {
	return ((z>>5 ^ y<<2) + (y>>3 ^ z<<4)) ^ ((sum ^ y) + (key[(p&3)^e] ^ z))
}

func bteaEncrypt(v []uint32, key *[4]uint32) {
	n := uint32(len(v))
	if n < 2 {
		return
	}
	var sum uint32
	z := v[n-1]
	for r := 0; r < bteaRounds; r++ {
		sum += bteaDelta
		e := (sum >> 2) & 3
		var p, y uint32
		for p = 0; p < n-1; p++ {
			y = v[p+1]
			v[p] += bteaMX(y, z, sum, p, e, key)
			z = v[p]
		}
		y = v[0]
		v[n-1] += bteaMX(y, z, sum, n-1, e, key)
		z = v[n-1]
	}
}

func bteaDecrypt(v []uint32, key *[4]uint32) {
	n := uint32(len(v))
	if n < 2 {
		return
	}
	delta := uint32(bteaDelta)
	sum := uint32(bteaRounds) * delta
	y := v[0]
	for r := 0; r < bteaRounds; r++ {
		e := (sum >> 2) & 3
		var z uint32
		for p := n - 1; p > 0; p-- {
			z = v[p-1]
			v[p] -= bteaMX(y, z, sum, p, e, key)
			y = v[p]
		}
		z = v[n-1]
		v[0] -= bteaMX(y, z, sum, 0, e, key)
		y = v[0]
		sum -= bteaDelta
	}
}
