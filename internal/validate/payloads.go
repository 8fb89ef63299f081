package validate

// Typed payload structs for every dispatcher action. The dispatcher decodes
// the raw payload into the struct for its action and runs Struct before the
// handler sees it.

// -- Ops: staff --

type StaffUpsert struct {
	TargetUserID string `json:"target_user_id" validate:"required,uuid"`
	Role         string `json:"role" validate:"required,oneof=viewer operator publisher admin"`
	DisplayName  string `json:"display_name" validate:"omitempty,max=200"`
}

type StaffRemove struct {
	TargetUserID string `json:"target_user_id" validate:"required,uuid"`
}

// -- Ops: banners --

type BannerList struct {
	Status    string `json:"status" validate:"omitempty,oneof=draft in_review published archived"`
	Placement string `json:"placement" validate:"omitempty,oneof=home_top home_bottom discover_top chat_top chat_list profile_banner funding_top popup"`
	Limit     int    `json:"limit" validate:"omitempty,gte=1,lte=100"`
	Offset    int    `json:"offset" validate:"omitempty,gte=0,lte=100000"`
}

type BannerGet struct {
	ID string `json:"id" validate:"required,uuid"`
}

type BannerCreate struct {
	Title          string `json:"title" validate:"required,min=1,max=200"`
	Placement      string `json:"placement" validate:"omitempty,oneof=home_top home_bottom discover_top chat_top chat_list profile_banner funding_top popup"`
	ImageURL       string `json:"image_url" validate:"omitempty,safeurl"`
	LinkURL        string `json:"link_url" validate:"omitempty,safeurl"`
	LinkType       string `json:"link_type" validate:"omitempty,oneof=internal external none"`
	Priority       *int   `json:"priority" validate:"omitempty,gte=0,lte=9999"`
	StartAt        string `json:"start_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	EndAt          string `json:"end_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	TargetAudience string `json:"target_audience" validate:"omitempty,oneof=all fans creators vip"`
}

type BannerUpdate struct {
	ID              string `json:"id" validate:"required,uuid"`
	ExpectedVersion int64  `json:"expected_version" validate:"required,gte=1,lte=999999"`
	Title           string `json:"title" validate:"omitempty,max=200"`
	Placement       string `json:"placement" validate:"omitempty,oneof=home_top home_bottom discover_top chat_top chat_list profile_banner funding_top popup"`
	ImageURL        string `json:"image_url" validate:"omitempty,safeurl"`
	LinkURL         string `json:"link_url" validate:"omitempty,safeurl"`
	LinkType        string `json:"link_type" validate:"omitempty,oneof=internal external none"`
	Priority        *int   `json:"priority" validate:"omitempty,gte=0,lte=9999"`
	StartAt         string `json:"start_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	EndAt           string `json:"end_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	TargetAudience  string `json:"target_audience" validate:"omitempty,oneof=all fans creators vip"`
}

// Versioned covers submit_review, publish and rollback-free transitions that
// carry an optimistic lock.
type Versioned struct {
	ID              string `json:"id" validate:"required,uuid"`
	ExpectedVersion int64  `json:"expected_version" validate:"required,gte=1,lte=999999"`
}

// IDOnly covers rollback and archive, which rely on the current-status check
// instead of an expected version.
type IDOnly struct {
	ID string `json:"id" validate:"required,uuid"`
}

// -- Ops: feature flags --

type FlagList struct {
	Status string `json:"status" validate:"omitempty,oneof=draft in_review published archived"`
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=100"`
	Offset int    `json:"offset" validate:"omitempty,gte=0,lte=100000"`
}

type FlagCreate struct {
	FlagKey        string         `json:"flag_key" validate:"required,slugkey"`
	Title          string         `json:"title" validate:"required,min=1,max=200"`
	Description    string         `json:"description" validate:"omitempty,max=500"`
	Enabled        *bool          `json:"enabled"`
	RolloutPercent *int           `json:"rollout_percent" validate:"omitempty,gte=0,lte=100"`
	PayloadData    map[string]any `json:"payload_data"`
}

type FlagUpdate struct {
	ID              string         `json:"id" validate:"required,uuid"`
	ExpectedVersion int64          `json:"expected_version" validate:"required,gte=1,lte=999999"`
	FlagKey         string         `json:"flag_key" validate:"omitempty,slugkey"`
	Title           string         `json:"title" validate:"omitempty,max=200"`
	Description     string         `json:"description" validate:"omitempty,max=500"`
	Enabled         *bool          `json:"enabled"`
	RolloutPercent  *int           `json:"rollout_percent" validate:"omitempty,gte=0,lte=100"`
	PayloadData     map[string]any `json:"payload_data"`
}

// -- Ops: fan ads --

type FanAdList struct {
	Status string `json:"status" validate:"omitempty,oneof=pending_review approved active completed rejected cancelled"`
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=100"`
	Offset int    `json:"offset" validate:"omitempty,gte=0,lte=100000"`
}

type FanAdApprove struct {
	ID        string `json:"id" validate:"required,uuid"`
	Placement string `json:"placement" validate:"required,oneof=home_top home_bottom discover_top chat_top chat_list profile_banner funding_top popup"`
	Priority  *int   `json:"priority" validate:"omitempty,gte=0,lte=9999"`
}

type FanAdReject struct {
	ID              string `json:"id" validate:"required,uuid"`
	RejectionReason string `json:"rejection_reason" validate:"required,min=1,max=500"`
}

// -- Shared: audit --

type AuditList struct {
	EntityType string `json:"entity_type" validate:"omitempty,oneof=content_item fan_ad ops_staff agency_staff agency_creator purchase_order wallet"`
	EntityID   string `json:"entity_id" validate:"omitempty,uuid"`
	Limit      int    `json:"limit" validate:"omitempty,gte=1,lte=100"`
	Offset     int    `json:"offset" validate:"omitempty,gte=0,lte=100000"`
}

// -- Agency --

type DashboardSummary struct {
	PeriodStart string `json:"period_start" validate:"omitempty,datetime=2006-01-02"`
	PeriodEnd   string `json:"period_end" validate:"omitempty,datetime=2006-01-02"`
}

type CreatorList struct {
	Status string `json:"status" validate:"omitempty,oneof=pending active paused terminated"`
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=100"`
	Offset int    `json:"offset" validate:"omitempty,gte=0,lte=100000"`
}

type CreatorAdd struct {
	CreatorProfileID string   `json:"creator_profile_id" validate:"required,uuid"`
	ContractStart    string   `json:"contract_start" validate:"required,datetime=2006-01-02"`
	ContractEnd      string   `json:"contract_end" validate:"omitempty,datetime=2006-01-02"`
	RevenueShareRate *float64 `json:"revenue_share_rate" validate:"required,gte=0,lte=1"`
	SettlementBasis  string   `json:"settlement_basis" validate:"omitempty,oneof=weekly biweekly monthly"`
	ContractNotes    string   `json:"contract_notes" validate:"omitempty,max=2000"`
}

type CreatorUpdate struct {
	ID               string   `json:"id" validate:"required,uuid"`
	RevenueShareRate *float64 `json:"revenue_share_rate" validate:"omitempty,gte=0,lte=1"`
	SettlementBasis  string   `json:"settlement_basis" validate:"omitempty,oneof=weekly biweekly monthly"`
	ContractEnd      string   `json:"contract_end" validate:"omitempty,datetime=2006-01-02"`
	ContractNotes    string   `json:"contract_notes" validate:"omitempty,max=2000"`
}

type CreatorRemove struct {
	ID string `json:"id" validate:"required,uuid"`
}

type SettlementList struct {
	Status string `json:"status" validate:"omitempty,oneof=draft pending_review approved processing paid cancelled"`
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=100"`
	Offset int    `json:"offset" validate:"omitempty,gte=0,lte=100000"`
}

type SettlementGet struct {
	ID string `json:"id" validate:"required,uuid"`
}

type AgencyStaffInvite struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=viewer manager finance admin"`
}

type AgencyStaffRemove struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// -- Payments --

type Checkout struct {
	PackageID     string `json:"package_id" validate:"required,slugkey"`
	PaymentMethod string `json:"payment_method" validate:"omitempty,oneof=card transfer easy_pay"`
	Platform      string `json:"platform" validate:"omitempty,oneof=web android ios"`
}

type Confirm struct {
	PaymentKey string `json:"payment_key" validate:"required,min=1,max=200"`
	OrderID    string `json:"order_id" validate:"required,uuid"`
	Amount     int64  `json:"amount" validate:"required,gte=1"`
}
