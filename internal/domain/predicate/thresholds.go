package predicate

import (
	"time"

	"github.com/shopspring/decimal"
)

// Counting thresholds.
const (
	FirstStepThreshold         = 1
	GettingStartedThreshold    = 10
	HalfCenturyThreshold       = 50
	CenturionThreshold         = 100
	PriorityHunterThreshold    = 5
	ConnectorThreshold         = 10
	ConversationalistThreshold = 50
	ArchivistThreshold         = 20
	ProlificCreatorThreshold   = 50
	MultitaskerThreshold       = 5
)

// Relational thresholds.
const (
	TeamPlayerThreshold   = 50
	DelegatorThreshold    = 10
	SteadfastThreshold    = 20
	FlawlessThreshold     = 10
	SecondChanceThreshold = 1
	BounceBackRun         = 5
)

// Ratio thresholds.
const (
	EstimatorThreshold = 10
)

// EstimatorTolerance is the maximum |estimated - actual| / estimated.
var EstimatorTolerance = decimal.RequireFromString("0.10")

// Time-window and calendar thresholds.
const (
	EarlyBirdThreshold      = 1
	NightOwlThreshold       = 1
	MidnightStrokeThreshold = 1
	WeekendWarriorThreshold = 5
	PerfectWeekMinTasks     = 5
)

// Local time-of-day windows.
var (
	EarlyBirdWindow      = Between(5, 0, 7, 0)
	NightOwlWindow       = Between(22, 0, 2, 0)
	MidnightStrokeWindow = Between(0, 0, 0, 1)
)

// Streak lengths.
const (
	OnARollDays       = 7
	UnstoppableDays   = 30
	DeadlineMasterRun = 10
)

// Duration bounds.
const (
	SpeedDemonThreshold      = 5
	SpeedDemonWithin         = 24 * time.Hour
	AheadOfScheduleThreshold = 5
	AheadOfScheduleLead      = 3 * 24 * time.Hour
)

// Elapsed-since-anchor bounds, in days.
const (
	VeteranDays = 365
	PatientDays = 30
)
