package model

import "time"

// 群聊原始记录：一个文件/天 一条，内容变化时按 hash 判断是否重跑
type RawTranscript struct {
	ID          int       `gorm:"primaryKey" json:"id"`
	ProductLine string    `gorm:"size:64;index:idx_group,priority:1" json:"product_line"`
	Period      string    `gorm:"size:16;index:idx_group,priority:2" json:"period"`
	GroupNumber int       `gorm:"index:idx_group,priority:3" json:"group_number"`
	GroupName   string    `gorm:"size:128" json:"group_name"`
	ChatDate    string    `gorm:"type:date;index:idx_group,priority:4" json:"chat_date"`
	RawText     string    `gorm:"type:longtext" json:"-"`
	ContentHash string    `gorm:"size:64;index" json:"content_hash"`
	Status      string    `gorm:"size:16;default:pending" json:"status"` // pending / processing / success / failed
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Message struct {
	ID           int    `gorm:"primaryKey" json:"id"`
	TranscriptID int    `gorm:"index" json:"transcript_id"`
	MemberID     string `gorm:"size:64;index;default:''" json:"member_id"`
	Author       string `gorm:"size:128" json:"author"`
	TimeOfDay    string `gorm:"size:8" json:"time_of_day"` // HH:MM:SS
	Body         string `gorm:"type:text" json:"body"`
}

type QuestionRecord struct {
	ID               int    `gorm:"primaryKey" json:"id"`
	TranscriptID     int    `gorm:"index" json:"transcript_id"`
	AskerName        string `gorm:"size:128" json:"asker_name"`
	AskerMemberID    string `gorm:"size:64;index;default:''" json:"asker_member_id"`
	AnswererName     string `gorm:"size:128" json:"answerer_name"`
	AnswererMemberID string `gorm:"size:64;index;default:''" json:"answerer_member_id"`
	Content          string `gorm:"type:text" json:"content"`
	AnswerContent    string `gorm:"type:text" json:"answer_content"`
	IsResolved       bool   `json:"is_resolved"`
	ResponseMinutes  *int   `json:"response_minutes"`
}

type GoodNewsItem struct {
	ID           int     `gorm:"primaryKey" json:"id"`
	TranscriptID int     `gorm:"index" json:"transcript_id"`
	MemberID     string  `gorm:"size:64;index;default:''" json:"member_id"`
	AuthorName   string  `gorm:"size:128" json:"author_name"`
	Content      string  `gorm:"type:text" json:"content"`
	ChatDate     string  `gorm:"type:date;index" json:"chat_date"`
	GroupName    string  `gorm:"size:255" json:"group_name"`
	Confidence   float64 `json:"confidence"`
	IsVerified   bool    `gorm:"index" json:"is_verified"`
}

type KocContribution struct {
	ID           int     `gorm:"primaryKey" json:"id"`
	TranscriptID int     `gorm:"index" json:"transcript_id"`
	MemberID     string  `gorm:"size:64;index;default:''" json:"member_id"`
	AuthorName   string  `gorm:"size:128" json:"author_name"`
	Contribution string  `gorm:"type:text" json:"contribution"`
	ChatDate     string  `gorm:"type:date;index" json:"chat_date"`
	GroupName    string  `gorm:"size:255" json:"group_name"`
	Confidence   float64 `json:"confidence"`
	IsVerified   bool    `gorm:"index" json:"is_verified"`
}

type StarStudent struct {
	ID           int    `gorm:"primaryKey" json:"id"`
	TranscriptID int    `gorm:"index" json:"transcript_id"`
	MemberID     string `gorm:"size:64;index;default:''" json:"member_id"`
	Name         string `gorm:"size:128" json:"name"`
	Reason       string `gorm:"type:text" json:"reason"`
	ChatDate     string `gorm:"type:date" json:"chat_date"`
	IsVerified   bool   `json:"is_verified"`
}

// 学员主档：一个真人一条，ID 优先用花名册外部编号，否则生成 uuid
type Member struct {
	ID             string    `gorm:"primaryKey;size:64" json:"id"`
	Nickname       string    `gorm:"size:128" json:"nickname"`
	NormalizedNick string    `gorm:"size:128;index" json:"normalized_nick"`
	Period         string    `gorm:"size:16" json:"period"`
	Status         string    `gorm:"size:16;default:active" json:"status"` // active / expired
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type MemberAlias struct {
	ID       int    `gorm:"primaryKey" json:"id"`
	Alias    string `gorm:"size:128;uniqueIndex" json:"alias"`
	MemberID string `gorm:"size:64;index" json:"member_id"`
}

type MemberStats struct {
	ID              int     `gorm:"primaryKey" json:"id"`
	MemberID        string  `gorm:"size:64;uniqueIndex" json:"member_id"`
	MessageCount    int     `json:"message_count"`
	QuestionCount   int     `json:"question_count"`
	AnswerCount     int     `json:"answer_count"`
	GoodNewsCount   int     `json:"good_news_count"`
	KocCount        int     `json:"koc_count"`
	AvgResponseMins float64 `json:"avg_response_mins"`
	FirstActiveDate string  `gorm:"type:date" json:"first_active_date"`
	LastActiveDate  string  `gorm:"type:date" json:"last_active_date"`
}

// 按 群/天 的汇总投影，可从源记录确定性重建
type Report struct {
	ID              int       `gorm:"primaryKey" json:"id"`
	ProductLine     string    `gorm:"size:64;uniqueIndex:uk_report,priority:1" json:"product_line"`
	Period          string    `gorm:"size:16;uniqueIndex:uk_report,priority:2" json:"period"`
	GroupNumber     int       `gorm:"uniqueIndex:uk_report,priority:3" json:"group_number"`
	ChatDate        string    `gorm:"type:date;uniqueIndex:uk_report,priority:4" json:"chat_date"`
	MessageCount    int       `json:"message_count"`
	QuestionCount   int       `json:"question_count"`
	ResolvedCount   int       `json:"resolved_count"`
	ResolutionRate  int       `json:"resolution_rate"` // 0-100
	AvgResponseMins float64   `json:"avg_response_mins"`
	GoodNewsCount   int       `json:"good_news_count"`
	Summary         string    `gorm:"type:text" json:"summary"`
	GoodNewsJSON    string    `gorm:"type:text" json:"good_news_json"`
	KocsJSON        string    `gorm:"type:text" json:"kocs_json"`
	StarsJSON       string    `gorm:"type:text" json:"stars_json"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ImportLog struct {
	ID           int       `gorm:"primaryKey" json:"id"`
	FileName     string    `gorm:"size:255" json:"file_name"`
	TranscriptID int       `gorm:"index" json:"transcript_id"`
	Status       string    `gorm:"size:16" json:"status"` // SUCCESS / SKIPPED / FAILED
	Reason       string    `gorm:"type:text" json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// 后台账号，与社群 Member 分开
type AdminUser struct {
	ID       int    `gorm:"primaryKey" json:"id"`
	Username string `gorm:"size:64;uniqueIndex" json:"username"`
	Password string `json:"-"`
	Name     string `gorm:"size:64" json:"name"`
	Role     string `gorm:"size:16;default:viewer" json:"role"`
}

func (RawTranscript) TableName() string   { return "raw_transcripts" }
func (Message) TableName() string         { return "messages" }
func (QuestionRecord) TableName() string  { return "question_records" }
func (GoodNewsItem) TableName() string    { return "good_news_items" }
func (KocContribution) TableName() string { return "koc_contributions" }
func (StarStudent) TableName() string     { return "star_students" }
func (Member) TableName() string          { return "members" }
func (MemberAlias) TableName() string     { return "member_aliases" }
func (MemberStats) TableName() string     { return "member_stats" }
func (Report) TableName() string          { return "reports" }
func (ImportLog) TableName() string       { return "import_logs" }
func (AdminUser) TableName() string       { return "admin_users" }
