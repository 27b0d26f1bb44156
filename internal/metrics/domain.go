package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Métricas de dominio. Viven en un paquete aparte para que huggingface y
// linking puedan registrarlas sin importar el paquete http.

var (
	// TokenExchanges cuenta llamadas al token endpoint.
	// grant: authorization_code | refresh_token. result: ok | provider_error | network_error | config_error.
	TokenExchanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huggingface_token_exchanges_total",
		Help: "Llamadas al token endpoint de Hugging Face por grant y resultado",
	}, []string{"grant", "result"})

	// LinkingOutcomes cuenta cómo terminó cada callback de linking.
	// outcome: linked | rolled_back | reported.
	LinkingOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "linking_outcomes_total",
		Help: "Resultados del flujo de vinculación con Hugging Face",
	}, []string{"outcome"})
)

// RegisterDomain registra las métricas de dominio en reg (o el default si es nil).
func RegisterDomain(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{TokenExchanges, LinkingOutcomes} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}
