// Package worker implements the extraction worker lifecycle and Redis Streams
// integration.
//
// The worker subscribes to a Redis stream for extraction jobs, evaluates them
// with a shared rule engine and publishes result payloads back to a result
// stream. Jobs that fail as a whole (invalid payloads, strict-mode failures,
// missing stored documents) are published to the "<result stream>.errors"
// stream.
//
// Example usage:
//
//	cfg, _ := config.Load()
//	redisClient := redis.NewClient(&redis.Options{...})
//	engine, _ := rule.NewEngine(cfg.EngineOptions(), logger)
//	processor := worker.NewProcessor(cfg.WorkerID, engine, worker.NewRedisDocumentStore(redisClient, ""), collector, logger)
//
//	w := worker.NewWorker(cfg, redisClient, processor, collector, logger)
//	if err := w.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop(ctx)
//
// A job is a JSON document in the "data" field of a stream entry:
//
//	{"id": "42", "document": "<h1>Hi</h1>", "rules": {"title": "@css:h1@text"}}
//
// Health checks and Prometheus metrics are provided via a separate HTTP
// server:
//
//	healthServer := worker.NewHealthServer(8082, redisClient, registry, logger)
//	healthServer.Start()
//	defer healthServer.Stop()
package worker
