package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/agents/advisor"
	"github.com/spigell/career-assistant/internal/agents/coverletter"
	"github.com/spigell/career-assistant/internal/ingestion"
)

// upload is a file sent inside a JSON body.
type upload struct {
	CVBase64 string `json:"cv_base64"`
	FileName string `json:"file_name"`
	MIMEType string `json:"mime_type"`
}

type analyzeRequest struct {
	upload
}

type analyzeResponse struct {
	SearchQuery string `json:"search_query"`
	Analysis    string `json:"analysis"`
	Status      string `json:"status"`
}

type matchRequest struct {
	upload
	CVText         string `json:"cv_text"`
	JobDescription string `json:"job_description"`
}

type matchResponse struct {
	*advisor.MatchAnalysis
	Status string `json:"status"`
}

type coverLetterRequest struct {
	upload
	CVText         string `json:"cv_text"`
	JobDescription string `json:"job_description"`
}

type coverLetterResponse struct {
	CoverLetter string `json:"cover_letter"`
	Status      string `json:"status"`
}

// decodeBase64 accepts plain base64 or a data URL.
func decodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+len(";base64,"):]
	}
	s = strings.Join(strings.Fields(s), "")
	return base64.StdEncoding.DecodeString(s)
}

// readCV turns an upload into text. It writes the error response itself and
// returns ok=false when the request cannot go on.
func (s *Server) readCV(c *fiber.Ctx, u upload) (text string, ok bool, err error) {
	data, derr := decodeBase64(u.CVBase64)
	if derr != nil {
		return "", false, s.fail(c, fiber.StatusBadRequest, "invalid base64 encoding")
	}
	if len(data) == 0 {
		return "", false, s.fail(c, fiber.StatusBadRequest, "cv file is empty")
	}
	if len(data) > s.cfg.MaxUploadBytes {
		return "", false, s.fail(c, fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("file too large, maximum is %d MB", s.cfg.MaxUploadBytes>>20))
	}
	if s.components.Extractor == nil {
		return "", false, s.fail(c, fiber.StatusServiceUnavailable, "document extraction is not configured")
	}

	text, xerr := s.components.Extractor.Extract(c.UserContext(), ingestion.Document{
		Name:     u.FileName,
		MIMEType: u.MIMEType,
		Data:     data,
	})
	if xerr != nil {
		s.logger.Warn("cv extraction failed", zap.String("file", u.FileName), zap.Error(xerr))
		return "", false, s.fail(c, fiber.StatusUnprocessableEntity, xerr.Error())
	}
	return text, true, nil
}

func (s *Server) handleAnalyzeCV(c *fiber.Ctx) error {
	if s.components.Advisor == nil {
		return s.fail(c, fiber.StatusServiceUnavailable, "cv analysis unavailable: advisor is not configured")
	}
	var req analyzeRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return s.fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.CVBase64 == "" {
		return s.fail(c, fiber.StatusUnprocessableEntity, "cv_base64 is required")
	}

	text, ok, err := s.readCV(c, req.upload)
	if !ok {
		return err
	}

	consultation, err := s.components.Advisor.Consult(c.UserContext(), text)
	if err != nil {
		if errors.Is(err, advisor.ErrEmptyCV) {
			return s.fail(c, fiber.StatusUnprocessableEntity, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(analyzeResponse{
		SearchQuery: consultation.SearchQuery,
		Analysis:    consultation.Report,
		Status:      statusSuccess,
	})
}

func (s *Server) handleMatchCV(c *fiber.Ctx) error {
	if s.components.Advisor == nil {
		return s.fail(c, fiber.StatusServiceUnavailable, "cv matching unavailable: advisor is not configured")
	}
	var req matchRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return s.fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.JobDescription) == "" {
		return s.fail(c, fiber.StatusUnprocessableEntity, "job_description is required")
	}

	cv := req.CVText
	if req.CVBase64 != "" {
		text, ok, err := s.readCV(c, req.upload)
		if !ok {
			return err
		}
		cv = text
	}
	if strings.TrimSpace(cv) == "" {
		return s.fail(c, fiber.StatusUnprocessableEntity, "cv_text or cv_base64 is required")
	}

	return c.JSON(matchResponse{
		MatchAnalysis: s.components.Advisor.Match(c.UserContext(), cv, req.JobDescription),
		Status:        statusSuccess,
	})
}

func (s *Server) handleCoverLetter(c *fiber.Ctx) error {
	if s.components.Letters == nil {
		return s.fail(c, fiber.StatusServiceUnavailable, "cover letter generation unavailable: writer is not configured")
	}
	var req coverLetterRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return s.fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.JobDescription)) < coverletter.MinJobDescriptionLength {
		return s.fail(c, fiber.StatusUnprocessableEntity, coverletter.ErrJobDescriptionTooShort.Error())
	}

	cv := req.CVText
	if req.CVBase64 != "" {
		text, ok, err := s.readCV(c, req.upload)
		if !ok {
			return err
		}
		cv = text
	}

	letter, err := s.components.Letters.Write(c.UserContext(), cv, req.JobDescription)
	if err != nil {
		if errors.Is(err, coverletter.ErrJobDescriptionTooShort) {
			return s.fail(c, fiber.StatusUnprocessableEntity, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(coverLetterResponse{CoverLetter: letter, Status: statusSuccess})
}
