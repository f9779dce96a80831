package service

import "github.com/prometheus/client_golang/prometheus"

var WorkflowStageCount = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cardpay_workflow_stage_total",
		Help: "Checkout workflow stages by outcome.",
	},
	[]string{"stage", "result"},
)

func PrometheusInit() {
	prometheus.MustRegister(WorkflowStageCount)
}

const (
	stageInitiate     = "initiate"
	stageDDC          = "device_data_collection"
	stageAuthenticate = "authenticate"
	stageCallback     = "challenge_callback"
	stageComplete     = "complete"
	stageSweep        = "sweep"
)

func observeStage(stage, result string) {
	WorkflowStageCount.WithLabelValues(stage, result).Inc()
}
