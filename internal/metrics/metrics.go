package metrics

import (
	"delitos/internal/aggregate"
	"delitos/internal/coder"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry：本进程的指标注册表；批处理结束时整体写入 textfile
var Registry = prometheus.NewRegistry()

var (
	RowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delitos_rows_total",
		Help: "Input data rows by outcome (ok or skipped for malformed CSV framing)",
	}, []string{"result"})
	Categories = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "delitos_categories",
		Help: "Distinct composite category codes in the dictionary",
	})
	Incidences = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "delitos_incidences",
		Help: "Non-zero (category, year-month, municipality) triples",
	})
	Overwrites = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "delitos_incidence_overwrites",
		Help: "Incidence triples written more than once (last writer wins)",
	})
	Codes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "delitos_codes",
		Help: "Code table size by taxonomy",
	}, []string{"kind"})
	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "delitos_stage_duration_seconds",
		Help:    "Duration of each batch stage",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"stage"})
	ExportTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delitos_export_total",
		Help: "Optional sink exports by sink and result",
	}, []string{"sink", "result"})
	LastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "delitos_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run",
	})
)

func init() {
	Registry.MustRegister(RowsTotal)
	Registry.MustRegister(Categories)
	Registry.MustRegister(Incidences)
	Registry.MustRegister(Overwrites)
	Registry.MustRegister(Codes)
	Registry.MustRegister(StageDuration)
	Registry.MustRegister(ExportTotal)
	Registry.MustRegister(LastSuccess)
}

// ObserveRun：记录一次遍历的行数与聚合规模
func ObserveRun(rows, skipped int, st aggregate.Stats) {
	RowsTotal.WithLabelValues("ok").Add(float64(rows))
	RowsTotal.WithLabelValues("skipped").Add(float64(skipped))
	Categories.Set(float64(st.Categories))
	Incidences.Set(float64(st.Triples))
	Overwrites.Set(float64(st.Overwrites))
	for _, k := range coder.Kinds() {
		Codes.WithLabelValues(k.String()).Set(float64(st.Codes[k]))
	}
}

// ObserveStage：记录阶段耗时
func ObserveStage(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveExport：记录可选导出的结果
func ObserveExport(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ExportTotal.WithLabelValues(sink, result).Inc()
}

// MarkSuccess：记录成功完成的时间
func MarkSuccess(t time.Time) { LastSuccess.Set(float64(t.Unix())) }

// 文档注释：将注册表写成 Prometheus 文本格式文件
// 背景：批处理进程不常驻，无法被抓取；交给 node_exporter 的 textfile collector 读取。
// 约束：path 为空时不写；写入经临时文件后 rename，避免采集到半截文件。
func WriteFile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, Registry)
}
