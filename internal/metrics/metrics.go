package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LinesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "threatmon_lines_total", Help: "Linhas lidas por fonte"},
		[]string{"source"},
	)
	Detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "threatmon_detections_total", Help: "Eventos de detecção por categoria"},
		[]string{"category"},
	)
	Anomalies = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "threatmon_anomalies_total", Help: "Linhas marcadas pelo detector de anomalias"},
	)
	AlertsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "threatmon_alerts_sent_total", Help: "Notificações entregues"},
		[]string{"kind"},
	)
	NotifyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "threatmon_notify_errors_total", Help: "Falhas de notificação"},
		[]string{"kind"},
	)
	NotifyDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "threatmon_notify_dropped_total", Help: "Notificações descartadas com fila cheia"},
	)
	StoreErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "threatmon_store_errors_total", Help: "Falhas ao gravar events.jsonl"},
	)
	TailErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "threatmon_tail_errors_total", Help: "Erros de leitura por fonte"},
		[]string{"source"},
	)
	Retrains = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "threatmon_retrains_total", Help: "Retreinos do modelo"},
		[]string{"outcome"},
	)
	WindowSize = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "threatmon_window_size", Help: "Amostras na janela de treino"},
	)
	ActiveTailers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "threatmon_active_tailers", Help: "Arquivos sendo seguidos"},
	)
	PendingThreats = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "threatmon_pending_threats", Help: "Ameaças aguardando o próximo flush"},
	)
)

func MustRegister() {
	prometheus.MustRegister(LinesRead, Detections, Anomalies, AlertsSent, NotifyErrors, NotifyDropped,
		StoreErrors, TailErrors, Retrains, WindowSize, ActiveTailers, PendingThreats)
}

func Handler() http.Handler { return promhttp.Handler() }
