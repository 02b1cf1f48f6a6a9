package schema

// Token 新上线代币的记录, token_address 唯一
type Token struct {
	TokenAddress            string   `gorm:"type:varchar(42);uniqueIndex;not null" json:"token_address"`
	PairAddress             string   `gorm:"type:varchar(42);not null" json:"pair_address"`
	DeployerAddress         *string  `gorm:"type:varchar(42);index" json:"deployer_address"`
	InitialTokenPriceNative *string  `gorm:"type:varchar(100)" json:"initial_token_price_native"`
	CurrentTokenPriceNative *string  `gorm:"type:varchar(100)" json:"current_token_price_native"`
	TokenName               string   `gorm:"type:varchar(255)" json:"token_name"`
	TokenSymbol             string   `gorm:"type:varchar(100)" json:"token_symbol"`
	TokenInitialLiquidity   *float64 `gorm:"type:double precision" json:"token_initial_liquidity"`
	TelegramLink            *string  `gorm:"type:varchar(512)" json:"telegram_link"`
	Website                 *string  `gorm:"type:varchar(512)" json:"website"`
	Twitter                 *string  `gorm:"type:varchar(512)" json:"twitter"`
	IsDexScreenAvailable    bool     `gorm:"default:false;not null;index" json:"is_dex_screen_available"`
	BuyTax                  *int     `gorm:"column:byu_tax" json:"byu_tax"`
	SellTax                 *int     `json:"sell_tax"`
	IsRugPull               bool     `gorm:"default:false;not null;index" json:"is_rug_pull"`
	MessageID               *int     `json:"message_id"`
	Base
}

func (Token) TableName() string {
	return "tokens"
}
