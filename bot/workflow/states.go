// Package workflow declares the Eva conversation graph: states, edges,
// timers, expected input, offered actions and input validators.
package workflow

import (
	"time"

	"github.com/m3rciful/evabot/core/telegram/state"
)

const (
	Idle     state.State = state.StateIdle
	MainMenu state.State = "main_menu"

	DocumentUpload    state.State = "document_upload"
	DocumentAnalyzing state.State = "document_analyzing"
	DocumentResults   state.State = "document_results"
	DocumentRedline   state.State = "document_redline"
	DocumentProtocol  state.State = "document_protocol"

	INNInput      state.State = "inn_input"
	INNProcessing state.State = "inn_processing"
	INNResults    state.State = "inn_results"
	INNDetailed   state.State = "inn_detailed"

	EverestMenu        state.State = "everest_menu"
	EverestSupply      state.State = "everest_supply"
	EverestSpec        state.State = "everest_spec"
	EverestWizard      state.State = "everest_wizard"
	EverestWizardStep1 state.State = "everest_wizard_step1"
	EverestWizardStep2 state.State = "everest_wizard_step2"
	EverestWizardStep3 state.State = "everest_wizard_step3"

	DocTypeSelect  state.State = "doc_type_select"
	DocParamsInput state.State = "doc_params_input"
	DocGenerating  state.State = "doc_generating"
	DocReady       state.State = "doc_ready"

	LegalCategory   state.State = "legal_category"
	LegalQuestion   state.State = "legal_question"
	LegalProcessing state.State = "legal_processing"
	LegalResponse   state.State = "legal_response"

	SettingsMenu          state.State = "settings_menu"
	SettingsProfile       state.State = "settings_profile"
	SettingsNotifications state.State = "settings_notifications"

	HelpMenu    state.State = "help_menu"
	HelpFAQ     state.State = "help_faq"
	HelpContact state.State = "help_contact"

	Error   state.State = "error"
	Timeout state.State = "timeout"
)

// Session data keys.
const (
	KeyINN          = "inn"
	KeyDocName      = "doc_name"
	KeyDocMIME      = "doc_mime"
	KeyContractType = "contract_type"
	KeyPartyName    = "party_name"
	KeyPartyINN     = "party_inn"
	KeyPartyAddress = "party_address"
	KeyPartyExtra   = "party_extra"
	KeyDocType      = "doc_type"
	KeyParams       = "params"
	KeyCategory     = "category"
	KeyQuestion     = "question"
	KeyResult       = "result"
	KeyDocID        = "doc_id"
	KeyNotify       = "notifications"
)

var resultKeys = []string{KeyResult, KeyDocID}

// resultStates render Data[KeyResult] above their prompt.
var resultStates = map[state.State]bool{
	DocumentResults:  true,
	DocumentRedline:  true,
	DocumentProtocol: true,
	INNResults:       true,
	INNDetailed:      true,
	EverestSupply:    true,
	EverestSpec:      true,
	DocReady:         true,
	LegalResponse:    true,
}

// ShowsResult reports whether st displays the stored result text.
func ShowsResult(st state.State) bool { return resultStates[st] }

// Transient states are passed through while a feature runs; they offer no
// actions and back-navigation skips them.
func Transient(st state.State) bool {
	switch st {
	case DocumentAnalyzing, INNProcessing, DocGenerating, LegalProcessing:
		return true
	}
	return false
}

// Options tunes the graph.
type Options struct {
	// StrictINN enables checksum verification of tax ids.
	StrictINN bool
}

// NewGraph builds the validated-at-startup graph of the bot.
func NewGraph(opts Options) *state.Graph {
	return &state.Graph{
		Initial:   Idle,
		Home:      MainMenu,
		Timeout:   Timeout,
		Universal: []state.State{MainMenu, Error},
		Transitions: map[state.State][]state.State{
			Idle: {MainMenu},
			MainMenu: {
				DocumentUpload, INNInput, EverestMenu, DocTypeSelect,
				LegalCategory, SettingsMenu, HelpMenu,
			},

			DocumentUpload:    {DocumentAnalyzing, MainMenu, Error},
			DocumentAnalyzing: {DocumentResults, DocumentUpload, Error},
			DocumentResults:   {DocumentRedline, DocumentProtocol, MainMenu},
			DocumentRedline:   {DocumentProtocol, DocumentResults, MainMenu},
			DocumentProtocol:  {DocumentRedline, DocumentResults, MainMenu},

			INNInput:      {INNProcessing, MainMenu, Error},
			INNProcessing: {INNResults, INNInput, Error},
			INNResults:    {INNDetailed, INNInput, EverestWizard, MainMenu},
			INNDetailed:   {INNResults, INNInput, EverestWizard, MainMenu},

			EverestMenu:        {EverestSupply, EverestSpec, EverestWizard, MainMenu},
			EverestSupply:      {EverestWizard, EverestMenu, MainMenu},
			EverestSpec:        {EverestWizard, EverestMenu, MainMenu},
			EverestWizard:      {EverestWizardStep1, MainMenu},
			EverestWizardStep1: {EverestWizardStep2, EverestWizard, MainMenu},
			EverestWizardStep2: {EverestWizardStep3, EverestWizardStep1, MainMenu},
			EverestWizardStep3: {DocGenerating, EverestWizardStep2, MainMenu},

			DocTypeSelect:  {DocParamsInput, MainMenu},
			DocParamsInput: {DocGenerating, DocTypeSelect, MainMenu, Error},
			DocGenerating:  {DocReady, Error},
			DocReady:       {DocTypeSelect, MainMenu},

			LegalCategory:   {LegalQuestion, MainMenu},
			LegalQuestion:   {LegalProcessing, LegalCategory, MainMenu, Error},
			LegalProcessing: {LegalResponse, Error},
			LegalResponse:   {LegalQuestion, MainMenu},

			SettingsMenu:          {SettingsProfile, SettingsNotifications, MainMenu},
			SettingsProfile:       {SettingsMenu, MainMenu},
			SettingsNotifications: {SettingsMenu, MainMenu},

			HelpMenu:    {HelpFAQ, HelpContact, MainMenu},
			HelpFAQ:     {HelpMenu, MainMenu},
			HelpContact: {HelpMenu, MainMenu},

			Error:   {MainMenu},
			Timeout: {MainMenu},
		},
		Labels: labels,
		Timeouts: map[state.State]time.Duration{
			DocumentUpload:     10 * time.Minute,
			INNInput:           5 * time.Minute,
			DocParamsInput:     15 * time.Minute,
			LegalQuestion:      10 * time.Minute,
			EverestWizardStep1: 10 * time.Minute,
			EverestWizardStep2: 10 * time.Minute,
			EverestWizardStep3: 10 * time.Minute,
		},
		Inputs: map[state.State]state.InputKind{
			DocumentUpload:     state.InputDocument,
			INNInput:           state.InputText,
			DocParamsInput:     state.InputText,
			LegalQuestion:      state.InputText,
			EverestWizardStep2: state.InputText,
		},
		Actions: actions,
		Validators: map[state.State]state.Validator{
			DocumentUpload:     ValidateDocumentName,
			INNInput:           INNValidator(opts.StrictINN),
			EverestWizardStep2: ValidateCompanyData,
			DocParamsInput:     ValidateDocumentParams,
			LegalQuestion:      ValidateLegalQuestion,
		},
		DataKeys: map[state.State][]string{
			DocumentAnalyzing:  {KeyDocName, KeyDocMIME},
			INNProcessing:      {KeyINN},
			EverestWizardStep2: {KeyContractType},
			EverestWizardStep3: {KeyPartyName, KeyPartyINN, KeyPartyAddress, KeyPartyExtra},
			DocParamsInput:     {KeyDocType},
			DocGenerating:      {KeyParams},
			LegalQuestion:      {KeyCategory},
			LegalProcessing:    {KeyQuestion},
			SettingsMenu:       {KeyNotify},

			DocumentResults:  resultKeys,
			DocumentRedline:  resultKeys,
			DocumentProtocol: resultKeys,
			INNResults:       resultKeys,
			INNDetailed:      resultKeys,
			EverestSupply:    resultKeys,
			EverestSpec:      resultKeys,
			DocReady:         resultKeys,
			LegalResponse:    resultKeys,
		},
		DefaultInput:   state.InputCallback,
		DefaultActions: []state.Action{ActionBack, ActionHome},
	}
}

var labels = map[state.State]string{
	Idle:     "Начальное состояние",
	MainMenu: "Главное меню",

	DocumentUpload:    "Ожидание загрузки договора",
	DocumentAnalyzing: "Анализ договора",
	DocumentResults:   "Результаты анализа договора",
	DocumentRedline:   "Правки к договору",
	DocumentProtocol:  "Протокол разногласий",

	INNInput:      "Ожидание ввода ИНН",
	INNProcessing: "Проверка ИНН",
	INNResults:    "Результаты проверки ИНН",
	INNDetailed:   "Подробная информация о контрагенте",

	EverestMenu:        "Меню пакета Эверест",
	EverestSupply:      "Договор поставки",
	EverestSpec:        "Спецификация",
	EverestWizard:      "Мастер создания документов",
	EverestWizardStep1: "Шаг 1: Выбор типа договора",
	EverestWizardStep2: "Шаг 2: Заполнение реквизитов",
	EverestWizardStep3: "Шаг 3: Проверка и генерация",

	DocTypeSelect:  "Выбор типа документа",
	DocParamsInput: "Ввод параметров документа",
	DocGenerating:  "Генерация документа",
	DocReady:       "Документ готов",

	LegalCategory:   "Выбор категории вопроса",
	LegalQuestion:   "Ожидание юридического вопроса",
	LegalProcessing: "Обработка вопроса",
	LegalResponse:   "Ответ юриста",

	SettingsMenu:          "Меню настроек",
	SettingsProfile:       "Профиль",
	SettingsNotifications: "Уведомления",

	HelpMenu:    "Меню помощи",
	HelpFAQ:     "Частые вопросы",
	HelpContact: "Связаться с нами",

	Error:   "Ошибка",
	Timeout: "Тайм-аут сессии",
}
