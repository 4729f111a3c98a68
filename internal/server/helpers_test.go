package server

import (
	"strconv"
	"time"
)

const (
	subscribeWait = 2 * time.Second
	pollEvery     = 10 * time.Millisecond
)

func jsonInt(f float64) string {
	return strconv.FormatInt(int64(f), 10)
}
