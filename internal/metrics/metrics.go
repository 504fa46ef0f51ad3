package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Счётчики ключевых денежных событий. Экспортируются на /metrics.
var (
	EscrowFundsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_funds_confirmed_total",
		Help: "Подтверждённые шлюзом пополнения escrow",
	})

	MilestoneReleases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_milestone_releases_total",
		Help: "Выплаты исполнителю по вехам",
	}, []string{"trigger"}) // employer | dispute | auto

	MilestoneRefunds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_milestone_refunds_total",
		Help: "Возвраты работодателю по вехам",
	}, []string{"trigger"}) // employer | dispute

	DisputesOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_disputes_opened_total",
		Help: "Открытые споры по вехам",
	})

	DisputesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_disputes_resolved_total",
		Help: "Разрешённые споры по исходам",
	}, []string{"outcome"})

	AutoReleaseScans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_auto_release_scans_total",
		Help: "Прогоны сканера автовыплат",
	})
)
