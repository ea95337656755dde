package workflow

import "github.com/m3rciful/evabot/core/telegram/state"

var prompts = map[state.State]string{
	Idle:     "Нажмите кнопку, чтобы открыть главное меню.",
	MainMenu: "Я Ева, ваш юридический помощник. Выберите, чем займёмся.",

	DocumentUpload:   "Пришлите договор файлом (txt, md, pdf, doc, docx, rtf, odt). Я найду рискованные условия.",
	DocumentResults:  "Могу подготовить правки или протокол разногласий.",
	DocumentRedline:  "Предлагаемые правки по пунктам договора.",
	DocumentProtocol: "Протокол разногласий можно направить контрагенту.",

	INNInput:    "Введите ИНН организации или ИП (10 или 12 цифр).",
	INNResults:  "Реквизиты сохранены на час и подставятся в договоры.",
	INNDetailed: "Полные сведения из реестра.",

	EverestMenu:        "Шаблоны пакета Эверест. Реквизиты последней проверки ИНН подставляются автоматически.",
	EverestSupply:      "Договор поставки сформирован.",
	EverestSpec:        "Спецификация сформирована.",
	EverestWizard:      "Мастер проведёт вас через три шага: тип договора, реквизиты, проверка.",
	EverestWizardStep1: "Какой договор составляем?",
	EverestWizardStep2: "Пришлите реквизиты контрагента строками «ключ: значение».\nОбязательно: name, inn, address.",
	EverestWizardStep3: "Проверьте данные и сформируйте договор.",

	DocTypeSelect:  "Какой документ подготовить?",
	DocParamsInput: "Пришлите параметры строками «ключ: значение», например:\nnumber: 15\ndate: 01.09.2025\namount: 120000",
	DocReady:       "Документ готов.",

	LegalCategory:         "К какой области относится вопрос?",
	LegalQuestion:         "Опишите ситуацию одним сообщением.",
	LegalResponse:         "Ответ носит справочный характер и не заменяет консультацию юриста.",
	SettingsMenu:          "Настройки бота.",
	SettingsProfile:       "Профиль хранится только в рамках текущей сессии.",
	SettingsNotifications: "Уведомления о готовности результатов.",

	HelpMenu:    "Чем помочь?",
	HelpFAQ:     "• Реквизиты из проверки ИНН хранятся час.\n• Сессия сбрасывается после суток бездействия.\n• /back возвращает на шаг назад, /reset начинает заново.",
	HelpContact: "Напишите администратору бота.",

	Error:   "Что-то пошло не так. Попробуйте ещё раз или вернитесь в меню.",
	Timeout: "Время ожидания истекло. Вернитесь в меню, чтобы продолжить.",
}

// Prompt is the instruction shown under the state label.
func Prompt(st state.State) string { return prompts[st] }
