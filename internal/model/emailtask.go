package model

// EmailTask is the payload handed to the task dispatcher, one per
// recipient. Delivery is fire-and-forget from the core's perspective.
type EmailTask struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}
