package api

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spigell/career-assistant/internal/agents/interview"
	"github.com/spigell/career-assistant/internal/history"
)

type interviewRequest struct {
	CandidateAnswer string `json:"candidate_answer"`
	// ConversationHistory is a list of {role, content} objects. Interviewer
	// turns use the assistant role.
	ConversationHistory any    `json:"conversation_history"`
	JobDescription      string `json:"job_description"`
	CVText              string `json:"cv_text"`
}

func (r *interviewRequest) session() *interview.Session {
	s := interview.NewSession(r.JobDescription, r.CVText)
	if h := history.Normalize(r.ConversationHistory); len(h) > 0 {
		s.History = h
	}
	return s
}

type interviewReply struct {
	InterviewerResponse string          `json:"interviewer_response"`
	ConversationHistory history.History `json:"conversation_history"`
	Status              string          `json:"status"`
}

type interviewEvaluation struct {
	Evaluation string `json:"evaluation"`
	Score      *int   `json:"score"`
	Status     string `json:"status"`
}

func (s *Server) handleInterviewStart(c *fiber.Ctx) error {
	if s.components.Interviewer == nil {
		return s.fail(c, fiber.StatusServiceUnavailable, "interview unavailable: interviewer is not configured")
	}
	return c.JSON(fiber.Map{
		"message":        "Interview session started",
		"first_question": interview.FirstQuestion,
		"status":         "ready",
		"instruction":    "Send answers to POST /interview/chat together with the conversation history.",
	})
}

func (s *Server) handleInterviewChat(c *fiber.Ctx) error {
	if s.components.Interviewer == nil {
		return s.fail(c, fiber.StatusServiceUnavailable, "interview unavailable: interviewer is not configured")
	}
	var req interviewRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return s.fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.CandidateAnswer) == "" {
		return s.fail(c, fiber.StatusUnprocessableEntity, "candidate_answer is required")
	}

	session := req.session()
	reply, err := s.components.Interviewer.Reply(c.UserContext(), session, req.CandidateAnswer)
	if err != nil {
		if errors.Is(err, interview.ErrEmptyAnswer) {
			return s.fail(c, fiber.StatusUnprocessableEntity, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(interviewReply{
		InterviewerResponse: reply,
		ConversationHistory: session.History,
		Status:              statusSuccess,
	})
}

func (s *Server) handleInterviewEvaluate(c *fiber.Ctx) error {
	if s.components.Interviewer == nil {
		return s.fail(c, fiber.StatusServiceUnavailable, "interview unavailable: interviewer is not configured")
	}
	var req interviewRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return s.fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	eval, err := s.components.Interviewer.Evaluate(c.UserContext(), req.session())
	if err != nil {
		if errors.Is(err, interview.ErrNoAnswers) {
			return s.fail(c, fiber.StatusUnprocessableEntity, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	resp := interviewEvaluation{Evaluation: eval.Markdown, Status: statusSuccess}
	if eval.Scored {
		resp.Score = &eval.Score
	}
	return c.JSON(resp)
}
