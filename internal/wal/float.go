package wal

import "math"

func float32bitsWAL(v float32) uint32     { return math.Float32bits(v) }
func float32frombitsWAL(b uint32) float32 { return math.Float32frombits(b) }
