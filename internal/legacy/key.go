package legacy

// Key schedule for the over-the-air cipher. The key depends on the
// transmitter address and on the GPS timestamp truncated to a 64 second
// window, so both ends derive it independently.

var keyTable = [8]uint32{
	0xe43276df, 0xdca83759, 0x9802b8ac, 0x4675a56b,
	0xfc78ea65, 0x804b90ea, 0xb76542cd, 0x329dfa32,
}

const (
	keySeed = 0x045d9f3b
	keyMask = 0x87b562f4
)

func obscure(key, seed uint32) uint32 {
	m1 := seed * (key ^ key>>16)
	m2 := seed * (m1 ^ m1>>16)
	return m2 ^ m2>>16
}

// makeKey derives the cipher key for one timestamp window. Bit 23 of the
// timestamp selects which half of the table is used.
func makeKey(timestamp, address uint32) [4]uint32 {
	var k [4]uint32
	base := 0
	if (timestamp>>23)&1 == 1 {
		base = 4
	}
	for i := 0; i < 4; i++ {
		k[i] = obscure(keyTable[base+i]^((timestamp>>6)^address), keySeed) ^ keyMask
	}
	return k
}
