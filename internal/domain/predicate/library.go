package predicate

import (
	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/fact"
)

var onCompleted = []fact.ActionType{fact.ActionTaskCompleted}

// DefaultRegistry registers the full achievement library.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	// Counting
	r.MustRegister(Entry{Code: achievement.CodeFirstStep, Predicate: CompletedCount(FirstStepThreshold), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodeGettingStarted, Predicate: CompletedCount(GettingStartedThreshold), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodeHalfCentury, Predicate: CompletedCount(HalfCenturyThreshold), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodeCenturion, Predicate: CompletedCount(CenturionThreshold), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodePriorityHunter, Predicate: CompletedWithPriority(fact.PriorityHigh, PriorityHunterThreshold), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodeConnector, Predicate: ActionCount(fact.ActionRelationAdded, ConnectorThreshold),
		Triggers: []fact.ActionType{fact.ActionRelationAdded}})
	r.MustRegister(Entry{Code: achievement.CodeConversationalist, Predicate: ActionCount(fact.ActionCommentAdded, ConversationalistThreshold),
		Triggers: []fact.ActionType{fact.ActionCommentAdded}})
	r.MustRegister(Entry{Code: achievement.CodeArchivist, Predicate: CompletedWithAttachment(ArchivistThreshold),
		Triggers: []fact.ActionType{fact.ActionTaskCompleted, fact.ActionAttachmentAdded}})
	r.MustRegister(Entry{Code: achievement.CodeProlificCreator, Predicate: CreatedCount(ProlificCreatorThreshold),
		Triggers: []fact.ActionType{fact.ActionCreated}})
	r.MustRegister(Entry{Code: achievement.CodeMultitasker, Predicate: DistinctWorkspaces(MultitaskerThreshold), Triggers: onCompleted})

	// Ratio
	r.MustRegister(Entry{Code: achievement.CodeEstimator, Predicate: WithinEstimate(EstimatorTolerance, EstimatorThreshold), Triggers: onCompleted})

	// Time-window and calendar
	r.MustRegister(Entry{Code: achievement.CodeEarlyBird, Predicate: CompletedInWindow(EarlyBirdWindow, EarlyBirdThreshold), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodeNightOwl, Predicate: CompletedInWindow(NightOwlWindow, NightOwlThreshold), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodeMidnightStroke, Predicate: CompletedInWindow(MidnightStrokeWindow, MidnightStrokeThreshold), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodeWeekendWarrior, Predicate: CompletedOnWeekend(WeekendWarriorThreshold), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodePerfectWeek, Predicate: PerfectWeek(PerfectWeekMinTasks), Triggers: onCompleted})

	// Streaks
	r.MustRegister(Entry{Code: achievement.CodeOnARoll, Predicate: DayStreak(OnARollDays), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodeUnstoppable, Predicate: DayStreak(UnstoppableDays), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodeDeadlineMaster, Predicate: OnTimeStreak(DeadlineMasterRun), Triggers: onCompleted})

	// Duration
	r.MustRegister(Entry{Code: achievement.CodeSpeedDemon, Predicate: CompletedWithin(SpeedDemonWithin, SpeedDemonThreshold), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodeAheadOfSchedule, Predicate: CompletedAheadOfDue(AheadOfScheduleLead, AheadOfScheduleThreshold), Triggers: onCompleted})

	// Relational
	r.MustRegister(Entry{Code: achievement.CodeTeamPlayer, Predicate: CompletedOthersTasks(TeamPlayerThreshold), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodeDelegator, Predicate: DelegatedTasks(DelegatorThreshold),
		Triggers: []fact.ActionType{fact.ActionCreated, fact.ActionAssigned}})
	r.MustRegister(Entry{Code: achievement.CodeSteadfast, Predicate: CompletedWithoutPriorAction(fact.ActionDueDateChanged, SteadfastThreshold), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodeFlawless, Predicate: CompletedNeverReopened(FlawlessThreshold), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodeSecondChance, Predicate: CompletedAfterReopen(SecondChanceThreshold), Triggers: onCompleted})
	r.MustRegister(Entry{Code: achievement.CodeBounceBack, Predicate: CleanRunAfterReopen(BounceBackRun), Triggers: onCompleted})

	// Elapsed since anchor: no event makes time pass
	r.MustRegister(Entry{Code: achievement.CodeVeteran, Predicate: AccountAge(VeteranDays), SweepOnly: true})
	r.MustRegister(Entry{Code: achievement.CodePatient, Predicate: OpenTaskHeld(PatientDays), SweepOnly: true})

	// Zero-state
	r.MustRegister(Entry{Code: achievement.CodeInboxZero, Predicate: NoOpenTasks(),
		Triggers: []fact.ActionType{fact.ActionTaskCompleted, fact.ActionTaskDiscarded}})

	return r
}
