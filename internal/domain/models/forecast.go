package models

type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
)

type TradeSignal struct {
	Day    int          `json:"day"`
	Price  float64      `json:"price"`
	Action SignalAction `json:"action"`
}

// Trade is one buy-then-sell cycle after costs.
type Trade struct {
	BuyDay           int     `json:"buy_day"`
	BuyPrice         float64 `json:"buy_price"`
	BuyPriceActual   float64 `json:"buy_price_actual"`
	SellDay          int     `json:"sell_day"`
	SellPrice        float64 `json:"sell_price"`
	SellPriceActual  float64 `json:"sell_price_actual"`
	Shares           float64 `json:"shares"`
	GrossProfit      float64 `json:"gross_profit"`
	Fees             float64 `json:"fees"`
	NetProfit        float64 `json:"net_profit"`
	ReturnPercentage float64 `json:"return_percentage"`
}

type TradingCosts struct {
	TransactionCostRate string  `json:"transaction_cost_rate"`
	SlippageRate        string  `json:"slippage_rate"`
	TotalFeesPaid       float64 `json:"total_fees_paid"`
}

type StrategyExplanation struct {
	Method       string `json:"method"`
	Description  string `json:"description"`
	BasedOn      string `json:"based_on"`
	Timeframe    string `json:"timeframe"`
	Period       string `json:"period"`
	TradesPerDay string `json:"trades_per_day"`
}

type TradingStrategy struct {
	InvestmentAmount        float64             `json:"investment_amount"`
	CurrentPrice            float64             `json:"current_price"`
	StrategyExplanation     StrategyExplanation `json:"strategy_explanation"`
	BuySignals              []TradeSignal       `json:"buy_signals"`
	SellSignals             []TradeSignal       `json:"sell_signals"`
	Trades                  []Trade             `json:"trades"`
	TotalTrades             int                 `json:"total_trades"`
	GrossTradingProfit      float64             `json:"gross_trading_profit"`
	TotalFees               float64             `json:"total_fees"`
	NetTradingProfit        float64             `json:"net_trading_profit"`
	FinalPortfolioValue     float64             `json:"final_portfolio_value"`
	TradingReturnPercentage float64             `json:"trading_return_percentage"`
	TradingCosts            TradingCosts        `json:"trading_costs"`
}

type ModelPerformance struct {
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

type Recommendation struct {
	CurrentAction   SignalAction `json:"current_action"`
	Confidence      string       `json:"confidence"`
	NextTargetPrice float64      `json:"next_target_price"`
}

type ForecastResult struct {
	Status           string           `json:"status"`
	ModelInfo        string           `json:"model_info"`
	Ticker           string           `json:"ticker"`
	PlotImg          string           `json:"plot_img"`
	Plot100DMA       string           `json:"plot_100_dma"`
	Plot200DMA       string           `json:"plot_200_dma"`
	PlotPrediction   string           `json:"plot_prediction"`
	ModelPerformance ModelPerformance `json:"model_performance"`
	TradingStrategy  TradingStrategy  `json:"trading_strategy"`
	Recommendations  Recommendation   `json:"recommendations"`
	Disclaimer       string           `json:"disclaimer"`
}

// TrainedModel describes one per-ticker artifact on disk.
type TrainedModel struct {
	Ticker       string        `json:"ticker"`
	ModelPath    string        `json:"model_path"`
	TrainedAt    string        `json:"trained_at"`
	FileSize     int64         `json:"file_size"`
	ModelSummary *ModelSummary `json:"model_summary"`
}
