package simulation

// splitmix64 is the SplitMix64 mixing function. It is used to derive an
// independent, well-distributed seed for every iteration from the run seed,
// so results are bit-identical no matter how iterations are split across
// workers.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

// iterationSeed derives the per-iteration seed from the run seed.
func iterationSeed(seed int64, iteration int) int64 {
	return int64(splitmix64(uint64(seed) + splitmix64(uint64(iteration))))
}
