// Package botv1 holds the messages of the qyburn.v1.BotService RPC surface.
// Messages travel as JSON, see Codec.
package botv1

import (
	"encoding/json"

	"github.com/saga-it/qyburn/internal/models"
)

type RunCommandRequest struct {
	Command     string `json:"command"`
	Args        string `json:"args"`
	CallerEmail string `json:"callerEmail"`
	Channel     string `json:"channel"`
}

type RunCommandResponse struct {
	Text string `json:"text"`
}

type SendMessageRequest struct {
	UserEmail string `json:"userEmail"`
	Text      string `json:"text"`
	Channel   string `json:"channel"`
}

type SendMessageResponse struct {
	Response string `json:"response"`
	Intent   string `json:"intent"`
	Resolved bool   `json:"resolved"`
}

type ReviewRequestRequest struct {
	RequestID string               `json:"requestId"`
	Decision  models.RequestStatus `json:"decision"`
	Reviewer  string               `json:"reviewer"`
}

type ReviewRequestResponse struct {
	Request *models.GroupAccessRequest `json:"request"`
}

type StartOnboardingRequest struct {
	TemplateID    string `json:"templateId"`
	EmployeeEmail string `json:"employeeEmail"`
	Actor         string `json:"actor"`
}

type OnboardingStep struct {
	Title  string `json:"title"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

type StartOnboardingResponse struct {
	TemplateID    string           `json:"templateId"`
	TemplateName  string           `json:"templateName"`
	EmployeeEmail string           `json:"employeeEmail"`
	Steps         []OnboardingStep `json:"steps"`
}

// Codec serializes BotService messages as plain JSON. It replaces connect's
// default "json" codec, which only accepts protobuf messages.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	return json.Unmarshal(data, msg)
}
