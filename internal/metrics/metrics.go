package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Producer side
	FramesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thermal_frames_captured_total",
		Help: "Frames read successfully from the sensor",
	})

	SensorTransientFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thermal_sensor_transient_faults_total",
		Help: "Sensor reads that failed transiently and were retried",
	})

	EncodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thermal_encode_errors_total",
		Help: "Frames skipped because they could not be encoded",
	})

	RecordsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thermal_records_inserted_total",
		Help: "Records accepted by the store without errors",
	})

	InsertApplicationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thermal_insert_application_errors_total",
		Help: "Insert calls that returned error descriptors",
	})

	LastIdentifier = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thermal_last_identifier",
		Help: "Identifier of the most recently sent record",
	})

	// Transport
	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "thermal_store_rpc_duration_seconds",
		Help:    "Store RPC latency by operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	RPCFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thermal_store_rpc_failures_total",
		Help: "Store RPC failures by operation and status code",
	}, []string{"op", "code"})

	// Replay side
	ReplayFramesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thermal_replay_frames_delivered_total",
		Help: "Frames decoded and handed to the renderer",
	})

	ReplayDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thermal_replay_decode_errors_total",
		Help: "Records skipped because they could not be decoded",
	})

	ReplayEmptyPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thermal_replay_empty_polls_total",
		Help: "Polls that found no record for the expected identifier",
	})

	ReplayCursor = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thermal_replay_cursor",
		Help: "Last identifier consumed by the replay reader",
	})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thermal_websocket_clients",
		Help: "Connected display clients",
	})

	// Store server
	StoreRecordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thermal_store_records_written_total",
		Help: "Records written by the reference store, by table",
	}, []string{"table"})
)
