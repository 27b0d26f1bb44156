package logger

import "go.uber.org/zap"

// S retorna el SugaredLogger del singleton (printf-style, usado por el CLI).
//
//	logger.S().Infof("applied %d migrations", n)
func S() *zap.SugaredLogger {
	return L().Sugar()
}
