// Package logging builds the service's zap logger.
//
// Production mode writes JSON lines; development mode writes colored console
// lines. Core packages never import this package: they take an optional
// *zap.Logger and default to zap.NewNop().
//
//	logger, err := logging.New(logging.Config{Level: "debug", Development: true})
//	logger.Info("Server starting", zap.String("addr", addr))
package logging
