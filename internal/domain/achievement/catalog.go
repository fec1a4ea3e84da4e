package achievement

// ══════════════════════════════════════════════════════════════════════════════
// CODES
// ══════════════════════════════════════════════════════════════════════════════

const (
	CodeFirstStep         Code = "first_step"
	CodeGettingStarted    Code = "getting_started"
	CodeHalfCentury       Code = "half_century"
	CodeCenturion         Code = "centurion"
	CodePriorityHunter    Code = "priority_hunter"
	CodeConnector         Code = "connector"
	CodeConversationalist Code = "conversationalist"
	CodeArchivist         Code = "archivist"
	CodeTeamPlayer        Code = "team_player"
	CodeProlificCreator   Code = "prolific_creator"
	CodeMultitasker       Code = "multitasker"
	CodeDelegator         Code = "delegator"
	CodeEstimator         Code = "estimator"
	CodeEarlyBird         Code = "early_bird"
	CodeNightOwl          Code = "night_owl"
	CodeMidnightStroke    Code = "midnight_stroke"
	CodeWeekendWarrior    Code = "weekend_warrior"
	CodePerfectWeek       Code = "perfect_week"
	CodeOnARoll           Code = "on_a_roll"
	CodeUnstoppable       Code = "unstoppable"
	CodeDeadlineMaster    Code = "deadline_master"
	CodeSpeedDemon        Code = "speed_demon"
	CodeAheadOfSchedule   Code = "ahead_of_schedule"
	CodeSteadfast         Code = "steadfast"
	CodeFlawless          Code = "flawless"
	CodeSecondChance      Code = "second_chance"
	CodeBounceBack        Code = "bounce_back"
	CodeVeteran           Code = "veteran"
	CodePatient           Code = "patient"
	CodeInboxZero         Code = "inbox_zero"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCatalog возвращает стартовый набор определений. Засевается в хранилище
// один раз; дальнейшие правки администраторов не перезаписываются.
func DefaultCatalog() []Definition {
	ru := func(name, desc string) map[string]LocalizedText {
		return map[string]LocalizedText{"ru": {Name: name, Description: desc}}
	}

	defs := []Definition{
		// Productivity
		{Code: CodeFirstStep, Name: "First Step", Description: "Complete your first task", Icon: "🎯",
			Category: CategoryMilestone, Difficulty: DifficultyEasy,
			Localized: ru("Первый шаг", "Выполните первую задачу")},
		{Code: CodeGettingStarted, Name: "Getting Started", Description: "Complete 10 tasks", Icon: "🚀",
			Category: CategoryMilestone, Difficulty: DifficultyEasy,
			Localized: ru("Разгон", "Выполните 10 задач")},
		{Code: CodeHalfCentury, Name: "Half Century", Description: "Complete 50 tasks", Icon: "🏅",
			Category: CategoryMilestone, Difficulty: DifficultyMedium,
			Localized: ru("Полсотни", "Выполните 50 задач")},
		{Code: CodeCenturion, Name: "Centurion", Description: "Complete 100 tasks", Icon: "🏆",
			Category: CategoryMilestone, Difficulty: DifficultyHard,
			Localized: ru("Центурион", "Выполните 100 задач")},
		{Code: CodePriorityHunter, Name: "Priority Hunter", Description: "Complete 5 high-priority tasks", Icon: "🔥",
			Category: CategoryProductivity, Difficulty: DifficultyMedium,
			Localized: ru("Охотник за приоритетами", "Выполните 5 задач с высоким приоритетом")},
		{Code: CodeProlificCreator, Name: "Prolific Creator", Description: "Create 50 tasks", Icon: "📝",
			Category: CategoryProductivity, Difficulty: DifficultyMedium,
			Localized: ru("Генератор идей", "Создайте 50 задач")},
		{Code: CodeMultitasker, Name: "Multitasker", Description: "Complete tasks in 5 different workspaces", Icon: "🧩",
			Category: CategoryProductivity, Difficulty: DifficultyMedium,
			Localized: ru("Многостаночник", "Выполняйте задачи в 5 разных пространствах")},
		{Code: CodeEstimator, Name: "Estimator", Description: "Finish 10 tasks within 10% of the estimate", Icon: "📐",
			Category: CategoryQuality, Difficulty: DifficultyHard,
			Localized: ru("Точный расчёт", "Завершите 10 задач с отклонением от оценки не более 10%")},

		// Timing
		{Code: CodeEarlyBird, Name: "Early Bird", Description: "Complete a task between 5 and 7 in the morning", Icon: "🐦",
			Category: CategoryTiming, Difficulty: DifficultyEasy,
			Localized: ru("Ранняя пташка", "Выполните задачу с 5 до 7 утра")},
		{Code: CodeNightOwl, Name: "Night Owl", Description: "Complete a task between 22:00 and 02:00", Icon: "🦉",
			Category: CategoryTiming, Difficulty: DifficultyEasy,
			Localized: ru("Ночная сова", "Выполните задачу с 22:00 до 02:00")},
		{Code: CodeMidnightStroke, Name: "Midnight Stroke", Description: "Complete a task in the first minute of the day", Icon: "🕛",
			Category: CategoryTiming, Difficulty: DifficultyMedium, Secret: true,
			Localized: ru("Ровно в полночь", "Выполните задачу в первую минуту суток")},
		{Code: CodeWeekendWarrior, Name: "Weekend Warrior", Description: "Complete 5 tasks on weekends", Icon: "🛡️",
			Category: CategoryTiming, Difficulty: DifficultyEasy,
			Localized: ru("Воин выходного дня", "Выполните 5 задач в выходные")},
		{Code: CodePerfectWeek, Name: "Perfect Week", Description: "Finish at least 5 tasks due this week, all on time", Icon: "📅",
			Category: CategoryTiming, Difficulty: DifficultyHard,
			Localized: ru("Идеальная неделя", "Закройте в срок все задачи недели, минимум 5")},
		{Code: CodeSpeedDemon, Name: "Speed Demon", Description: "Complete 5 tasks within 24 hours of creation", Icon: "⚡",
			Category: CategoryTiming, Difficulty: DifficultyMedium,
			Localized: ru("Молния", "Выполните 5 задач в течение суток после создания")},
		{Code: CodeAheadOfSchedule, Name: "Ahead of Schedule", Description: "Complete 5 tasks at least 3 days before the due date", Icon: "⏩",
			Category: CategoryTiming, Difficulty: DifficultyMedium,
			Localized: ru("С опережением", "Выполните 5 задач минимум за 3 дня до срока")},

		// Consistency
		{Code: CodeOnARoll, Name: "On a Roll", Description: "Complete tasks 7 days in a row", Icon: "🎳",
			Category: CategoryConsistency, Difficulty: DifficultyMedium,
			Localized: ru("Неделя огня", "Выполняйте задачи 7 дней подряд")},
		{Code: CodeUnstoppable, Name: "Unstoppable", Description: "Complete tasks 30 days in a row", Icon: "💪",
			Category: CategoryConsistency, Difficulty: DifficultyHard,
			Localized: ru("Железная воля", "Выполняйте задачи 30 дней подряд")},
		{Code: CodeDeadlineMaster, Name: "Deadline Master", Description: "Complete 10 tasks on time in a row", Icon: "⏱️",
			Category: CategoryConsistency, Difficulty: DifficultyHard,
			Localized: ru("Повелитель дедлайнов", "Выполните 10 задач подряд в срок")},
		{Code: CodeSteadfast, Name: "Steadfast", Description: "Complete 20 tasks without moving their due date", Icon: "🪨",
			Category: CategoryConsistency, Difficulty: DifficultyMedium,
			Localized: ru("Непоколебимый", "Выполните 20 задач, не переносив срок")},
		{Code: CodeVeteran, Name: "Veteran", Description: "Be a member for a year", Icon: "🎖️",
			Category: CategoryMilestone, Difficulty: DifficultyMedium,
			Localized: ru("Ветеран", "Год в команде")},
		{Code: CodePatient, Name: "Patient", Description: "Keep a task open for 30 days", Icon: "🐢",
			Category: CategoryConsistency, Difficulty: DifficultyEasy, Secret: true,
			Localized: ru("Терпение", "Держите задачу открытой 30 дней")},
		{Code: CodeInboxZero, Name: "Inbox Zero", Description: "Have no incomplete tasks left", Icon: "📭",
			Category: CategoryProductivity, Difficulty: DifficultyMedium,
			Localized: ru("Чистый лист", "Не оставьте ни одной незавершённой задачи")},

		// Quality
		{Code: CodeFlawless, Name: "Flawless", Description: "Complete 10 tasks that were never reopened", Icon: "💎",
			Category: CategoryQuality, Difficulty: DifficultyMedium,
			Localized: ru("Без единой ошибки", "Выполните 10 задач, которые ни разу не переоткрывали")},
		{Code: CodeSecondChance, Name: "Second Chance", Description: "Complete a task after it was reopened", Icon: "🔄",
			Category: CategoryQuality, Difficulty: DifficultyEasy, Secret: true,
			Localized: ru("Второй шанс", "Выполните задачу после переоткрытия")},
		{Code: CodeBounceBack, Name: "Bounce Back", Description: "Complete 5 clean tasks in a row after a reopen", Icon: "🏀",
			Category: CategoryQuality, Difficulty: DifficultyMedium,
			Localized: ru("Реванш", "После переоткрытия выполните 5 задач подряд без возвратов")},

		// Collaboration
		{Code: CodeConnector, Name: "Connector", Description: "Link 10 items to each other", Icon: "🔗",
			Category: CategoryCollaboration, Difficulty: DifficultyMedium,
			Localized: ru("Связной", "Свяжите 10 элементов между собой")},
		{Code: CodeConversationalist, Name: "Conversationalist", Description: "Write 50 comments", Icon: "💬",
			Category: CategoryCollaboration, Difficulty: DifficultyMedium,
			Localized: ru("Собеседник", "Напишите 50 комментариев")},
		{Code: CodeArchivist, Name: "Archivist", Description: "Complete 20 tasks with attachments", Icon: "📎",
			Category: CategoryCollaboration, Difficulty: DifficultyMedium,
			Localized: ru("Архивариус", "Выполните 20 задач с вложениями")},
		{Code: CodeTeamPlayer, Name: "Team Player", Description: "Complete 50 tasks created by others", Icon: "🤝",
			Category: CategoryCollaboration, Difficulty: DifficultyHard,
			Localized: ru("Командный игрок", "Выполните 50 задач, созданных коллегами")},
		{Code: CodeDelegator, Name: "Delegator", Description: "Assign 10 of your tasks to teammates", Icon: "📤",
			Category: CategoryCollaboration, Difficulty: DifficultyEasy,
			Localized: ru("Делегатор", "Назначьте коллегам 10 созданных вами задач")},
	}

	for i := range defs {
		defs[i].Active = true
		defs[i].SortOrder = (i + 1) * 10
	}
	return defs
}
