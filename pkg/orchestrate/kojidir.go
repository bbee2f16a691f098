package orchestrate

import (
	"fmt"
	"math/rand"
	"time"
)

const uploadDirLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// mintKojiUploadDir produces the "koji-upload/<wall-clock-timestamp>.<8
// random letters>" path every worker build in a run is told to share.
func mintKojiUploadDir(now time.Time) string {
	return fmt.Sprintf("koji-upload/%d.%06d.%s", now.Unix(), now.Nanosecond()/1000, randomLetters(8))
}

func randomLetters(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = uploadDirLetters[rand.Intn(len(uploadDirLetters))]
	}
	return string(out)
}
