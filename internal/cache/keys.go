package cache

import "fmt"

func RateLimitKey(visitorHash string) string {
	return fmt.Sprintf("ratelimit:%s", visitorHash)
}

func SweepGateKey() string {
	return "sweep:gate"
}
