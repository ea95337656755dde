package workflow

import "github.com/m3rciful/evabot/core/telegram/state"

// Navigation.
const (
	ActionBack    state.Action = "back"
	ActionHome    state.Action = "home"
	ActionRestart state.Action = "restart"
)

// Main menu.
const (
	ActionContracts state.Action = "contracts"
	ActionINNCheck  state.Action = "inn_check"
	ActionEverest   state.Action = "everest"
	ActionDocuments state.Action = "documents"
	ActionLegalHelp state.Action = "legal_help"
	ActionSettings  state.Action = "settings"
	ActionHelp      state.Action = "help"
)

// Results and wizard.
const (
	ActionRedline        state.Action = "redline"
	ActionProtocol       state.Action = "protocol"
	ActionDetailedInfo   state.Action = "detailed_info"
	ActionNewCheck       state.Action = "new_check"
	ActionMakeContract   state.Action = "make_contract"
	ActionSupplyContract state.Action = "supply_contract"
	ActionSpecification  state.Action = "specification"
	ActionWizard         state.Action = "wizard"
	ActionWizardStart    state.Action = "wizard_start"
	ActionSupply         state.Action = "supply"
	ActionService        state.Action = "service"
	ActionMixed          state.Action = "mixed"
	ActionGenerate       state.Action = "generate"
	ActionEdit           state.Action = "edit"
)

// Templates, legal help, settings and help.
const (
	ActionTplInvoice    state.Action = "tpl_invoice"
	ActionTplAct        state.Action = "tpl_act"
	ActionTplClaim      state.Action = "tpl_claim"
	ActionNewDocument   state.Action = "new_document"
	ActionCatContract   state.Action = "cat_contract"
	ActionCatLabor      state.Action = "cat_labor"
	ActionCatCorporate  state.Action = "cat_corporate"
	ActionCatOther      state.Action = "cat_other"
	ActionAskMore       state.Action = "ask_more"
	ActionProfile       state.Action = "profile"
	ActionNotifications state.Action = "notifications"
	ActionToggleNotify  state.Action = "toggle_notifications"
	ActionFAQ           state.Action = "faq"
	ActionContact       state.Action = "contact"
)

var (
	nav     = []state.Action{ActionBack, ActionHome}
	nothing = []state.Action{}
)

func with(a ...state.Action) []state.Action { return append(a, nav...) }

var actions = map[state.State][]state.Action{
	Idle: {ActionHome},
	MainMenu: {
		ActionContracts, ActionINNCheck, ActionEverest, ActionDocuments,
		ActionLegalHelp, ActionSettings, ActionHelp,
	},

	DocumentAnalyzing: nothing,
	DocumentResults:   with(ActionRedline, ActionProtocol),
	DocumentRedline:   with(ActionProtocol),
	DocumentProtocol:  with(ActionRedline),

	INNProcessing: nothing,
	INNResults:    with(ActionDetailedInfo, ActionNewCheck, ActionMakeContract),
	INNDetailed:   with(ActionNewCheck, ActionMakeContract),

	EverestMenu:        with(ActionSupplyContract, ActionSpecification, ActionWizard),
	EverestSupply:      with(ActionWizard),
	EverestSpec:        with(ActionWizard),
	EverestWizard:      with(ActionWizardStart),
	EverestWizardStep1: with(ActionSupply, ActionService, ActionMixed),
	EverestWizardStep3: with(ActionGenerate, ActionEdit),

	DocTypeSelect: with(ActionTplInvoice, ActionTplAct, ActionTplClaim),
	DocGenerating: nothing,
	DocReady:      with(ActionNewDocument),

	LegalCategory:   with(ActionCatContract, ActionCatLabor, ActionCatCorporate, ActionCatOther),
	LegalProcessing: nothing,
	LegalResponse:   with(ActionAskMore),

	SettingsMenu:          with(ActionProfile, ActionNotifications),
	SettingsNotifications: with(ActionToggleNotify),

	HelpMenu: with(ActionFAQ, ActionContact),

	Error:   {ActionHome, ActionRestart},
	Timeout: {ActionHome, ActionRestart},
}

var actionLabels = map[state.Action]string{
	ActionBack:    "⬅️ Назад",
	ActionHome:    "🏠 Главное меню",
	ActionRestart: "🔄 Начать заново",

	ActionContracts: "📄 Анализ договора",
	ActionINNCheck:  "🔍 Проверка ИНН",
	ActionEverest:   "🏔 Пакет Эверест",
	ActionDocuments: "📝 Документы",
	ActionLegalHelp: "⚖️ Юридический вопрос",
	ActionSettings:  "⚙️ Настройки",
	ActionHelp:      "❓ Помощь",

	ActionRedline:        "✏️ Правки",
	ActionProtocol:       "📋 Протокол разногласий",
	ActionDetailedInfo:   "ℹ️ Подробнее",
	ActionNewCheck:       "🔍 Новая проверка",
	ActionMakeContract:   "📄 Составить договор",
	ActionSupplyContract: "📦 Договор поставки",
	ActionSpecification:  "📑 Спецификация",
	ActionWizard:         "🧙 Мастер документов",
	ActionWizardStart:    "▶️ Начать",
	ActionSupply:         "Поставка",
	ActionService:        "Услуги",
	ActionMixed:          "Смешанный",
	ActionGenerate:       "✅ Сформировать",
	ActionEdit:           "✏️ Изменить реквизиты",

	ActionTplInvoice:    "Счёт",
	ActionTplAct:        "Акт",
	ActionTplClaim:      "Претензия",
	ActionNewDocument:   "📝 Новый документ",
	ActionCatContract:   "Договорное право",
	ActionCatLabor:      "Трудовое право",
	ActionCatCorporate:  "Корпоративное право",
	ActionCatOther:      "Другое",
	ActionAskMore:       "❓ Задать ещё вопрос",
	ActionProfile:       "👤 Профиль",
	ActionNotifications: "🔔 Уведомления",
	ActionToggleNotify:  "🔔 Вкл/выкл",
	ActionFAQ:           "📚 Частые вопросы",
	ActionContact:       "✉️ Контакты",
}

// ActionLabel is the button caption for a.
func ActionLabel(a state.Action) string {
	if l, ok := actionLabels[a]; ok {
		return l
	}
	return string(a)
}

// Jump is an action whose effect is a fixed transition.
type Jump struct {
	To   state.State
	Data state.Data
}

var jumps = map[state.Action]Jump{
	ActionHome: {To: MainMenu},

	ActionContracts: {To: DocumentUpload},
	ActionINNCheck:  {To: INNInput},
	ActionEverest:   {To: EverestMenu},
	ActionDocuments: {To: DocTypeSelect},
	ActionLegalHelp: {To: LegalCategory},
	ActionSettings:  {To: SettingsMenu},
	ActionHelp:      {To: HelpMenu},

	ActionNewCheck:     {To: INNInput},
	ActionMakeContract: {To: EverestWizard},
	ActionWizard:       {To: EverestWizard},
	ActionWizardStart:  {To: EverestWizardStep1},
	ActionSupply:       {To: EverestWizardStep2, Data: state.Data{KeyContractType: ContractSupply}},
	ActionService:      {To: EverestWizardStep2, Data: state.Data{KeyContractType: ContractService}},
	ActionMixed:        {To: EverestWizardStep2, Data: state.Data{KeyContractType: ContractMixed}},
	ActionEdit:         {To: EverestWizardStep2},

	ActionTplInvoice:  {To: DocParamsInput, Data: state.Data{KeyDocType: TemplateInvoice}},
	ActionTplAct:      {To: DocParamsInput, Data: state.Data{KeyDocType: TemplateAct}},
	ActionTplClaim:    {To: DocParamsInput, Data: state.Data{KeyDocType: TemplateClaim}},
	ActionNewDocument: {To: DocTypeSelect},

	ActionCatContract:  {To: LegalQuestion, Data: state.Data{KeyCategory: CategoryContract}},
	ActionCatLabor:     {To: LegalQuestion, Data: state.Data{KeyCategory: CategoryLabor}},
	ActionCatCorporate: {To: LegalQuestion, Data: state.Data{KeyCategory: CategoryCorporate}},
	ActionCatOther:     {To: LegalQuestion, Data: state.Data{KeyCategory: CategoryOther}},
	ActionAskMore:      {To: LegalQuestion},

	ActionProfile:       {To: SettingsProfile},
	ActionNotifications: {To: SettingsNotifications},
	ActionFAQ:           {To: HelpFAQ},
	ActionContact:       {To: HelpContact},
}

// JumpFor returns the fixed transition bound to a, if any. Data is a copy.
func JumpFor(a state.Action) (Jump, bool) {
	j, ok := jumps[a]
	j.Data = j.Data.Clone()
	return j, ok
}

// Contract kinds chosen in wizard step 1.
const (
	ContractSupply  = "supply"
	ContractService = "service"
	ContractMixed   = "mixed"
)

// Document templates offered by the documents menu.
const (
	TemplateInvoice = "invoice"
	TemplateAct     = "act"
	TemplateClaim   = "claim"
)

// Legal question categories.
const (
	CategoryContract  = "contract"
	CategoryLabor     = "labor"
	CategoryCorporate = "corporate"
	CategoryOther     = "other"
)
