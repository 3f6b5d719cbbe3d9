package i18n

// Translator retrieves localized messages for Issue codes.
// data provides optional metadata to embed in the message (for example,
// "tag" or "id").
type Translator interface {
	Message(code string, data map[string]string) string
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

func (t dictTranslator) Message(code string, data map[string]string) string {
	msg := t.lookup(code)
	if msg == "" {
		return code
	}
	if tag := data["tag"]; tag != "" {
		return msg + ": " + tag
	}
	if id := data["id"]; id != "" {
		return msg + ": " + id
	}
	return msg
}

func (t dictTranslator) lookup(code string) string {
	switch t.lang {
	case "ja":
		switch code {
		case "ignored_field":
			return "フィールドは無視されます"
		case "unregistered_scalar":
			return "スカラー型が登録されていません"
		case "config_error":
			return "型の設定が不正です"
		case "unresolved_scope":
			return "スコープを解決できません"
		case "invalid_value":
			return "値を解析できません"
		case "field_access":
			return "フィールドにアクセスできません"
		case "unknown_tag":
			return "未知のタグです"
		case "duplicate_id":
			return "IDが重複しています"
		case "duplicate_key":
			return "キーが重複しています"
		case "parse_error":
			return "解析エラー"
		case "dangling_reference":
			return "未定義のIDへの参照です"
		case "unknown_root":
			return "ルートタグがスコープにありません"
		}
	default: // "en"
		switch code {
		case "ignored_field":
			return "field ignored"
		case "unregistered_scalar":
			return "no scalar type registered"
		case "config_error":
			return "invalid type configuration"
		case "unresolved_scope":
			return "scope not found"
		case "invalid_value":
			return "value could not be parsed"
		case "field_access":
			return "field could not be accessed"
		case "unknown_tag":
			return "unknown tag"
		case "duplicate_id":
			return "duplicate id"
		case "duplicate_key":
			return "duplicate key"
		case "parse_error":
			return "parse error"
		case "dangling_reference":
			return "reference to undefined id"
		case "unknown_root":
			return "root tag not in scope"
		}
	}
	return ""
}

var currentTranslator Translator = dictTranslator{lang: "en"}

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if lang != "ja" {
		lang = "en"
	}
	currentTranslator = dictTranslator{lang: lang}
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version).
func SetTranslator(tr Translator) {
	if tr == nil {
		currentTranslator = dictTranslator{lang: "en"}
		return
	}
	currentTranslator = tr
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string { return currentTranslator.Message(code, data) }
