package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hanifmn/cveval/internal/eval"
	"github.com/hanifmn/cveval/internal/retrieval"
	"github.com/hanifmn/cveval/internal/storage"
)

// MCPRetriever abstracts rubric search for the MCP layer.
type MCPRetriever interface {
	Retrieve(ctx context.Context, query, kind string) ([]retrieval.ContextChunk, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service   *eval.Service
	Retriever MCPRetriever
}

// NewMCPServer creates an MCP server exposing the evaluation service as
// tools, so agent clients can submit candidates and poll results without
// going through HTTP.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"cveval",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("cveval — asynchronous candidate evaluation: submit an uploaded CV and project report for rubric-guided scoring, then poll for the result."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("submit_evaluation",
			mcp.WithDescription("Submit an uploaded CV and project report for evaluation against a role. Returns the job id to poll."),
			mcp.WithString("job_title", mcp.Description("Role the candidate is evaluated for"), mcp.Required()),
			mcp.WithString("cv_id", mcp.Description("Document id returned by the upload endpoint for the CV"), mcp.Required()),
			mcp.WithString("report_id", mcp.Description("Document id returned by the upload endpoint for the project report"), mcp.Required()),
		),
		mcpSubmitEvaluation(deps),
	)

	s.AddTool(
		mcp.NewTool("get_result",
			mcp.WithDescription("Poll an evaluation job. Returns status, current stage, and the scored result once completed."),
			mcp.WithString("id", mcp.Description("Job id returned by submit_evaluation"), mcp.Required()),
		),
		mcpGetResult(deps),
	)

	s.AddTool(
		mcp.NewTool("search_rubrics",
			mcp.WithDescription("Semantically search the seeded ground-truth corpus of rubrics, job descriptions, and case briefs."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("kind", mcp.Description("Optional corpus filter: cv_rubric, project_rubric, job_description, or case_brief")),
		),
		mcpSearchRubrics(deps),
	)

	return s
}

func mcpSubmitEvaluation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobTitle, err := req.RequireString("job_title")
		if err != nil {
			return mcpError("job_title is required"), nil
		}
		cvID, err := req.RequireString("cv_id")
		if err != nil {
			return mcpError("cv_id is required"), nil
		}
		reportID, err := req.RequireString("report_id")
		if err != nil {
			return mcpError("report_id is required"), nil
		}

		job, err := deps.Service.Submit(eval.SubmitRequest{
			JobTitle:     jobTitle,
			CVFileID:     cvID,
			ReportFileID: reportID,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("submission rejected: %v", err)), nil
		}

		b, err := json.Marshal(map[string]string{
			"id":     job.ID,
			"status": string(job.Status),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetResult(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		job, res, err := deps.Service.Poll(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("no evaluation job with id %s", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load job: %v", err)), nil
		}

		resp := ResultResponse{
			ID:     job.ID,
			Status: string(job.Status),
			Stage:  string(job.Stage),
			Error:  job.ErrorMessage,
		}
		if job.Status == storage.StatusCompleted && res != nil {
			resp.Result = &ResultPayload{
				CVMatchRate:     res.CVMatchRate,
				CVFeedback:      res.CVFeedback,
				ProjectScore:    res.ProjectScore,
				ProjectFeedback: res.ProjectFeedback,
				OverallSummary:  res.OverallSummary,
				Partial:         res.Partial,
			}
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchRubrics(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		kind := req.GetString("kind", "")

		chunks, err := deps.Retriever.Retrieve(ctx, query, kind)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(chunks)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
