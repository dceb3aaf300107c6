// Package redis connects to Redis with go-redis/v9.
//
// Connect retries until the server answers PING; Healthcheck adapts a client
// to the readiness probe signature. The notifier uses Redis only as a pub/sub
// bus for change feed events (see package changefeed), so Config also carries
// the channel prefix shared by publishers and subscribers.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
package redis
