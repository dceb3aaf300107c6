package redis

import "errors"

var (
	ErrEmptyConnectionURL           = errors.New("empty redis connection URL")
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not answer PING before the connect deadline")
	ErrHealthcheckFailed            = errors.New("redis is not reachable")
)
