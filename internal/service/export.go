package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"surveypoints/internal/model"
)

// utf8BOM Excel 等表格软件识别 UTF-8 需要的字节序标记
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// QuestionMapping 数据集列名与题目原文的对应关系
type QuestionMapping struct {
	ColumnName   string `json:"column_name"`
	QuestionText string `json:"question_text"`
}

// DatasetPreview 数据集购买前的预览（前若干条回答）
type DatasetPreview struct {
	SurveyTitle     string            `json:"survey_title"`
	TotalResponses  int64             `json:"total_responses"`
	CSVHeaders      []string          `json:"csv_headers"`
	CSVData         [][]string        `json:"csv_data"`
	QuestionMapping []QuestionMapping `json:"question_mapping"`
}

// buildDatasetTable 把回答 JSON 摊平成表格
// 列顺序：response_id、submitted_at、Q1..Qn（题目键排序后重命名）
func buildDatasetTable(questions []*model.SurveyQuestion, responses []*model.SurveyResponse) (headers []string, rows [][]string, mapping []QuestionMapping, err error) {
	parsed := make([]map[string]interface{}, 0, len(responses))
	keySet := make(map[string]bool)
	for _, resp := range responses {
		answers := map[string]interface{}{}
		if resp.Answers != "" {
			if err := json.Unmarshal([]byte(resp.Answers), &answers); err != nil {
				return nil, nil, nil, fmt.Errorf("回答内容解析失败: %w", err)
			}
		}
		parsed = append(parsed, answers)
		for key := range answers {
			keySet[key] = true
		}
	}

	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	questionText := make(map[string]string, len(questions))
	for _, q := range questions {
		questionText[strconv.FormatInt(q.ID, 10)] = q.QuestionText
	}

	headers = []string{"response_id", "submitted_at"}
	for i, key := range keys {
		column := fmt.Sprintf("Q%d", i+1)
		headers = append(headers, column)

		text := key
		if t, ok := questionText[key]; ok {
			text = t
		}
		mapping = append(mapping, QuestionMapping{ColumnName: column, QuestionText: text})
	}

	for i, answers := range parsed {
		row := []string{
			strconv.Itoa(i + 1),
			responses[i].SubmittedAt.Format(time.RFC3339),
		}
		for _, key := range keys {
			row = append(row, formatAnswer(answers[key]))
		}
		rows = append(rows, row)
	}

	return headers, rows, mapping, nil
}

func formatAnswer(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, formatAnswer(item))
		}
		return joinSemicolon(parts)
	case map[string]interface{}:
		raw, _ := json.Marshal(v)
		return string(raw)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func joinSemicolon(parts []string) string {
	result := ""
	for i, p := range parts {
		if i > 0 {
			result += "; "
		}
		result += p
	}
	return result
}

// encodeCSV RFC 4180 引号规则由 encoding/csv 保证，前置 BOM 兼容表格软件
func encodeCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ============================================================
// 数据市场：预览与完整下载
// ============================================================

const previewRows = 3

func (s *MarketService) BuildPreview(ctx context.Context, listingID int64) (*DatasetPreview, error) {
	listing, err := s.marketRepo.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	questions, err := s.surveyRepo.GetQuestions(ctx, listing.SurveyID)
	if err != nil {
		return nil, err
	}
	responses, err := s.surveyRepo.GetResponses(ctx, listing.SurveyID, previewRows)
	if err != nil {
		return nil, err
	}

	headers, rows, mapping, err := buildDatasetTable(questions, responses)
	if err != nil {
		return nil, err
	}

	survey, err := s.surveyRepo.GetByID(ctx, listing.SurveyID)
	if err != nil {
		return nil, err
	}

	return &DatasetPreview{
		SurveyTitle:     listing.Title,
		TotalResponses:  survey.CurrentResponses,
		CSVHeaders:      headers,
		CSVData:         rows,
		QuestionMapping: mapping,
	}, nil
}

// DownloadDatasetCSV 完整数据集导出，仅限已购买的买家和卖家本人
func (s *MarketService) DownloadDatasetCSV(ctx context.Context, userID, listingID int64) ([]byte, error) {
	listing, err := s.CanDownload(ctx, userID, listingID)
	if err != nil {
		return nil, err
	}

	questions, err := s.surveyRepo.GetQuestions(ctx, listing.SurveyID)
	if err != nil {
		return nil, err
	}
	responses, err := s.surveyRepo.GetResponses(ctx, listing.SurveyID, 0)
	if err != nil {
		return nil, err
	}

	headers, rows, _, err := buildDatasetTable(questions, responses)
	if err != nil {
		return nil, err
	}
	return encodeCSV(headers, rows)
}

// ============================================================
// 创建者导出：带回答者信息和题目原文的 CSV
// ============================================================

func (s *SurveyService) ExportResponsesCSV(ctx context.Context, userID, surveyID int64) ([]byte, error) {
	survey, err := s.surveyRepo.GetByID(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if survey.CreatorID != userID {
		return nil, ErrNotSurveyOwner
	}

	questions, err := s.surveyRepo.GetQuestions(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	responses, err := s.surveyRepo.GetResponses(ctx, surveyID, 0)
	if err != nil {
		return nil, err
	}

	respondentIDs := make([]int64, 0, len(responses))
	for _, resp := range responses {
		respondentIDs = append(respondentIDs, resp.RespondentID)
	}
	usernames, err := s.userRepo.MapUsernames(ctx, respondentIDs)
	if err != nil {
		return nil, err
	}

	headers := []string{"respondent_id", "respondent_name", "submitted_at"}
	for _, q := range questions {
		headers = append(headers, q.QuestionText)
	}

	rows := make([][]string, 0, len(responses))
	for _, resp := range responses {
		answers := map[string]interface{}{}
		if resp.Answers != "" {
			if err := json.Unmarshal([]byte(resp.Answers), &answers); err != nil {
				return nil, fmt.Errorf("回答内容解析失败: %w", err)
			}
		}

		name := usernames[resp.RespondentID]
		if name == "" {
			name = "匿名"
		}
		row := []string{
			strconv.FormatInt(resp.RespondentID, 10),
			name,
			resp.SubmittedAt.Format(time.RFC3339),
		}
		for _, q := range questions {
			row = append(row, formatAnswer(answers[strconv.FormatInt(q.ID, 10)]))
		}
		rows = append(rows, row)
	}

	return encodeCSV(headers, rows)
}
