package mcptool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
)

// ChatParams defines parameters for the patient_chat tool.
type ChatParams struct {
	Query string `json:"query"`
	// SessionID scopes conversation memory. Calls without one share the
	// server's default session.
	SessionID string `json:"session_id,omitempty"`
}

// LookupParams defines parameters for the patient_lookup tool.
type LookupParams struct {
	Name string `json:"name"`
}

// LookupResult is the structured payload of patient_lookup.
type LookupResult struct {
	Count    int              `json:"count"`
	Patients []domain.Patient `json:"patients"`
}

// SummaryParams defines parameters for the patient_summary tool.
type SummaryParams struct {
	PatientID int64 `json:"patient_id"`
}

// handleChat routes one question through the pipeline.
func (s *Server) handleChat(ctx context.Context, req *mcp.CallToolRequest, params ChatParams) (*mcp.CallToolResult, any, error) {
	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = s.defaultSession
	}

	s.logger.WithFields(logrus.Fields{
		"tool":       "patient_chat",
		"session_id": sessionID,
	}).Info("Tool invoked")

	response, err := s.pipeline.Answer(ctx, sessionID, params.Query)
	if err != nil {
		return errorResult("unable to answer the question", err), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: response.Answer},
		},
	}, response, nil
}

// handleLookup searches the patient roster by name.
func (s *Server) handleLookup(ctx context.Context, req *mcp.CallToolRequest, params LookupParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "patient_lookup").Info("Tool invoked")

	if strings.TrimSpace(params.Name) == "" {
		return errorResult("name is required", nil), nil, nil
	}

	patients, err := s.source.FindPatientsByName(ctx, params.Name)
	if err != nil {
		return errorResult("patient lookup failed", err), nil, nil
	}

	lines := make([]string, 0, len(patients)+1)
	lines = append(lines, fmt.Sprintf("Found %d patient(s) matching %q.", len(patients), params.Name))
	for _, patient := range patients {
		lines = append(lines, describePatient(patient))
	}

	result := LookupResult{Count: len(patients), Patients: patients}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: strings.Join(lines, "\n")},
		},
	}, result, nil
}

// handleSummary answers a summary question for a patient selected by ID.
// The question still flows through the pipeline so the summary cache and
// the forbidden vocabulary filter apply exactly as they do for chat.
func (s *Server) handleSummary(ctx context.Context, req *mcp.CallToolRequest, params SummaryParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":       "patient_summary",
		"patient_id": params.PatientID,
	}).Info("Tool invoked")

	if params.PatientID <= 0 {
		return errorResult("patient_id is required", nil), nil, nil
	}

	patient, err := s.source.GetPatient(ctx, params.PatientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return errorResult(fmt.Sprintf("patient %d not found", params.PatientID), nil), nil, nil
		}
		return errorResult("patient lookup failed", err), nil, nil
	}

	response, err := s.pipeline.Answer(ctx, s.defaultSession, fmt.Sprintf("Summarize %s", patient.Name))
	if err != nil {
		return errorResult("unable to generate the summary", err), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: response.Answer},
		},
	}, response, nil
}

// describePatient renders one roster line, skipping unrecorded fields.
func describePatient(patient domain.Patient) string {
	details := make([]string, 0, 3)
	if patient.Age > 0 {
		details = append(details, fmt.Sprintf("age %d", patient.Age))
	}
	if patient.PrimaryCondition != "" {
		details = append(details, patient.PrimaryCondition)
	}
	if patient.RiskLevel != "" {
		details = append(details, patient.RiskLevel+" risk")
	}
	if len(details) == 0 {
		return fmt.Sprintf("- #%d %s", patient.PatientID, patient.Name)
	}
	return fmt.Sprintf("- #%d %s (%s)", patient.PatientID, patient.Name, strings.Join(details, ", "))
}

func errorResult(message string, err error) *mcp.CallToolResult {
	text := "Error: " + message
	if err != nil {
		text += fmt.Sprintf(" - %v", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}
