package models

type TrainRequest struct {
	Ticker string `json:"ticker" validate:"required,ticker"`
}

type PredictRequest struct {
	Ticker           string  `json:"ticker" validate:"required,ticker"`
	InvestmentAmount float64 `json:"investment_amount" validate:"gte=0"`
}

type TrainResponse struct {
	Status  string `json:"status"`
	TaskID  string `json:"task_id"`
	Ticker  string `json:"ticker"`
	Message string `json:"message"`
}

type TrainedModelsResponse struct {
	Status string         `json:"status"`
	Models []TrainedModel `json:"models"`
	Count  int            `json:"count"`
}
