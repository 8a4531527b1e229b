package model

// GroupRule 群名注册表条目：Keywords 全部命中才算匹配，注册表顺序即匹配优先级
type GroupRule struct {
	Canonical   string   `yaml:"canonical" json:"canonical"`
	ProductLine string   `yaml:"product_line" json:"product_line"`
	Period      string   `yaml:"period" json:"period"`
	GroupNumber int      `yaml:"group_number" json:"group_number"`
	Keywords    []string `yaml:"keywords" json:"keywords"`
}

type GroupInfo struct {
	ProductLine string `json:"product_line"`
	Period      string `json:"period"`
	GroupNumber int    `json:"group_number"`
	Canonical   string `json:"canonical"`
	DateStr     string `json:"date_str"`
}

type DayChunk struct {
	Date    string `json:"date"` // YYYY-MM-DD
	Content string `json:"content"`
}

type ParsedMessage struct {
	Author    string `json:"author"`
	TimeOfDay string `json:"time_of_day"` // HH:MM:SS
	Body      string `json:"body"`
}

// ClassifyResult 规则分类器的产出，完全由消息序列推出
type ClassifyResult struct {
	Questions       []QuestionCandidate `json:"questions"`
	GoodNewsIdx     []int               `json:"good_news_idx"`
	ShareIdx        []int               `json:"share_idx"`
	ResolutionRate  int                 `json:"resolution_rate"` // 0-100
	AvgResponseMins float64             `json:"avg_response_mins"`
}

type QuestionCandidate struct {
	Index           int    `json:"index"`
	AskerName       string `json:"asker_name"`
	Content         string `json:"content"`
	AnswererName    string `json:"answerer_name"`
	AnswerContent   string `json:"answer_content"`
	IsResolved      bool   `json:"is_resolved"`
	ResponseMinutes *int   `json:"response_minutes"`
}

// ExtractionResult 外部模型单窗口/合并后的结构化结果。
// 率值用指针区分“窗口没报这个字段”和 0，合并取均值时空窗口不计入。
type ExtractionResult struct {
	ProductLine     string              `json:"productLine"`
	Period          string              `json:"period"`
	GroupNumber     int                 `json:"groupNumber"`
	Date            string              `json:"date"`
	MessageCount    int                 `json:"messageCount"`
	QuestionCount   int                 `json:"questionCount"`
	AvgResponseTime *float64            `json:"avgResponseTime"`
	ResolutionRate  *float64            `json:"resolutionRate"`
	GoodNewsCount   int                 `json:"goodNewsCount"`
	StarStudents    []StarStudentItem   `json:"starStudents"`
	Kocs            []KocItem           `json:"kocs"`
	GoodNews        []GoodNewsEntry     `json:"goodNews"`
	Questions       []ExtractedQuestion `json:"questions"`
	ActionItems     []string            `json:"actionItems"`
	FullText        string              `json:"fullText"`
}

type StarStudentItem struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type KocItem struct {
	Name         string `json:"name"`
	Contribution string `json:"contribution"`
}

type GoodNewsEntry struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

type ExtractedQuestion struct {
	Question string `json:"question"`
	Asker    string `json:"asker"`
	Answerer string `json:"answerer"`
	Answer   string `json:"answer"`
	Resolved bool   `json:"resolved"`
}

// Highlight 去重的统一输入：喜报和 KOC 都折算成这个形状
type Highlight struct {
	Content string `json:"content"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Group   string `json:"group"`
}

// --- 身份归一 ---

// UnifyMapping 一条归并指令：legacy 学员并入 canonical（花名册编号）
type UnifyMapping struct {
	LegacyID    string `json:"legacy_id"`
	CanonicalID string `json:"canonical_id"`
}

type UnifyConflict struct {
	CanonicalID string   `json:"canonical_id"`
	LegacyIDs   []string `json:"legacy_ids"`
	Reason      string   `json:"reason"`
}

type UnifyReport struct {
	Executed        bool            `json:"executed"`
	Mappings        []UnifyMapping  `json:"mappings"`
	Conflicts       []UnifyConflict `json:"conflicts"`
	RewrittenRows   int64           `json:"rewritten_rows"`
	ExpiredMembers  int             `json:"expired_members"`
	AliasesRecorded int             `json:"aliases_recorded"`
	AliasesDropped  int             `json:"aliases_dropped"`
}

// --- HTTP DTO ---

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}
