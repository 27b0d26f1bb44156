// Package logger expone un logger Zap singleton con scoping por contexto.
//
// # Decisiones
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Scoping: cada request lleva su propio logger con request_id, user_id y
//     flow sin crear un core nuevo (ver middlewares.WithLogging).
//   - Entornos: "dev" usa consola con colores, "prod" usa JSON.
//   - Secretos: access tokens, refresh tokens, passwords y valores de state
//     NUNCA se loguean. Usar Masked() cuando haga falta correlacionar.
//
// # Uso
//
//	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "momtrack"})
//	defer logger.Sync()
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Linker.HandleCallback"))
//	log.Info("huggingface linked", logger.UserID(uid))
package logger
