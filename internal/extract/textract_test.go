package extract

import (
	"context"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/joseph-ayodele/docpipe/constants"
)

type fakeTextractAPI struct {
	startTextDetection func(*textract.StartDocumentTextDetectionInput) (*textract.StartDocumentTextDetectionOutput, error)
	startAnalysis      func(*textract.StartDocumentAnalysisInput) (*textract.StartDocumentAnalysisOutput, error)
	getTextDetection   func(*textract.GetDocumentTextDetectionInput) (*textract.GetDocumentTextDetectionOutput, error)
	getAnalysis        func(*textract.GetDocumentAnalysisInput) (*textract.GetDocumentAnalysisOutput, error)
	detectText         func(*textract.DetectDocumentTextInput) (*textract.DetectDocumentTextOutput, error)
	analyzeDocument    func(*textract.AnalyzeDocumentInput) (*textract.AnalyzeDocumentOutput, error)
}

func (f *fakeTextractAPI) StartDocumentTextDetection(ctx context.Context, params *textract.StartDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error) {
	return f.startTextDetection(params)
}

func (f *fakeTextractAPI) StartDocumentAnalysis(ctx context.Context, params *textract.StartDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.StartDocumentAnalysisOutput, error) {
	return f.startAnalysis(params)
}

func (f *fakeTextractAPI) GetDocumentTextDetection(ctx context.Context, params *textract.GetDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error) {
	return f.getTextDetection(params)
}

func (f *fakeTextractAPI) GetDocumentAnalysis(ctx context.Context, params *textract.GetDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.GetDocumentAnalysisOutput, error) {
	return f.getAnalysis(params)
}

func (f *fakeTextractAPI) DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	return f.detectText(params)
}

func (f *fakeTextractAPI) AnalyzeDocument(ctx context.Context, params *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error) {
	return f.analyzeDocument(params)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestStartAsyncRoutesOnFeatures(t *testing.T) {
	var textDetectionCalls, analysisCalls int

	api := &fakeTextractAPI{
		startTextDetection: func(in *textract.StartDocumentTextDetectionInput) (*textract.StartDocumentTextDetectionOutput, error) {
			textDetectionCalls++
			if aws.ToString(in.DocumentLocation.S3Object.Bucket) != "inbound-docs" {
				t.Errorf("bucket = %q", aws.ToString(in.DocumentLocation.S3Object.Bucket))
			}
			if in.NotificationChannel == nil || aws.ToString(in.NotificationChannel.SNSTopicArn) != "arn:topic" {
				t.Errorf("notification channel not forwarded: %+v", in.NotificationChannel)
			}
			if aws.ToString(in.ClientRequestToken) != "token-1" {
				t.Errorf("request token = %q", aws.ToString(in.ClientRequestToken))
			}
			return &textract.StartDocumentTextDetectionOutput{JobId: aws.String("tx-plain")}, nil
		},
		startAnalysis: func(in *textract.StartDocumentAnalysisInput) (*textract.StartDocumentAnalysisOutput, error) {
			analysisCalls++
			if len(in.FeatureTypes) != 2 {
				t.Errorf("feature types = %v", in.FeatureTypes)
			}
			return &textract.StartDocumentAnalysisOutput{JobId: aws.String("tx-analysis")}, nil
		},
	}
	engine := NewTextractEngine(api, testLogger())

	jobID, err := engine.StartAsync(context.Background(), AsyncRequest{
		Bucket: "inbound-docs", Key: "drop/a.pdf",
		TopicARN: "arn:topic", RoleARN: "arn:role", RequestToken: "token-1",
	})
	if err != nil {
		t.Fatalf("start plain: %v", err)
	}
	if jobID != "tx-plain" {
		t.Fatalf("plain job id = %q", jobID)
	}

	jobID, err = engine.StartAsync(context.Background(), AsyncRequest{
		Bucket: "inbound-docs", Key: "drop/b.pdf",
		Features: []string{"TABLES", "FORMS"},
	})
	if err != nil {
		t.Fatalf("start analysis: %v", err)
	}
	if jobID != "tx-analysis" {
		t.Fatalf("analysis job id = %q", jobID)
	}

	if textDetectionCalls != 1 || analysisCalls != 1 {
		t.Fatalf("calls = %d text detection, %d analysis; want 1 each", textDetectionCalls, analysisCalls)
	}
}

func TestFetchResultPaginates(t *testing.T) {
	calls := 0
	api := &fakeTextractAPI{
		getTextDetection: func(in *textract.GetDocumentTextDetectionInput) (*textract.GetDocumentTextDetectionOutput, error) {
			calls++
			if aws.ToString(in.JobId) != "tx-1" {
				t.Errorf("job id = %q", aws.ToString(in.JobId))
			}
			if in.NextToken == nil {
				return &textract.GetDocumentTextDetectionOutput{
					JobStatus:        types.JobStatusSucceeded,
					NextToken:        aws.String("page-2"),
					DocumentMetadata: &types.DocumentMetadata{Pages: aws.Int32(4)},
					Blocks: []types.Block{
						{BlockType: types.BlockTypeLine, Id: aws.String("l1"), Text: aws.String("first")},
					},
				}, nil
			}
			return &textract.GetDocumentTextDetectionOutput{
				JobStatus: types.JobStatusSucceeded,
				Blocks: []types.Block{
					{BlockType: types.BlockTypeLine, Id: aws.String("l2"), Text: aws.String("second")},
				},
			}, nil
		},
	}
	engine := NewTextractEngine(api, testLogger())

	result, err := engine.FetchResult(context.Background(), "tx-1", nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls != 2 {
		t.Fatalf("made %d calls, want 2 pages", calls)
	}
	if result.Status != constants.JobStatusSucceeded {
		t.Fatalf("status = %q", result.Status)
	}
	if result.Pages != 4 {
		t.Fatalf("pages = %d, want 4", result.Pages)
	}
	if len(result.Blocks) != 2 || result.Blocks[0].Text != "first" || result.Blocks[1].Text != "second" {
		t.Fatalf("blocks = %+v", result.Blocks)
	}
}

func TestFetchResultStopsWhileInProgress(t *testing.T) {
	calls := 0
	api := &fakeTextractAPI{
		getTextDetection: func(in *textract.GetDocumentTextDetectionInput) (*textract.GetDocumentTextDetectionOutput, error) {
			calls++
			return &textract.GetDocumentTextDetectionOutput{
				JobStatus: types.JobStatusInProgress,
				NextToken: aws.String("would-be-more"),
			}, nil
		},
	}
	engine := NewTextractEngine(api, testLogger())

	result, err := engine.FetchResult(context.Background(), "tx-2", nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.Status != constants.JobStatusInProgress {
		t.Fatalf("status = %q, want IN_PROGRESS", result.Status)
	}
	if calls != 1 {
		t.Fatalf("made %d calls, want an early stop after 1", calls)
	}
}

func TestFetchResultUsesAnalysisAPIForFeatureJobs(t *testing.T) {
	api := &fakeTextractAPI{
		getAnalysis: func(in *textract.GetDocumentAnalysisInput) (*textract.GetDocumentAnalysisOutput, error) {
			return &textract.GetDocumentAnalysisOutput{
				JobStatus: types.JobStatusPartialSuccess,
				Warnings: []types.Warning{
					{ErrorCode: aws.String("PAGE_LIMIT"), Pages: []int32{11, 12}},
				},
			}, nil
		},
	}
	engine := NewTextractEngine(api, testLogger())

	result, err := engine.FetchResult(context.Background(), "tx-3", []string{"FORMS"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.Status != constants.JobStatusPartialSuccess {
		t.Fatalf("status = %q, want PARTIAL_SUCCESS", result.Status)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %v", result.Warnings)
	}
}

func TestExtractSyncRoutesOnFeatures(t *testing.T) {
	api := &fakeTextractAPI{
		detectText: func(in *textract.DetectDocumentTextInput) (*textract.DetectDocumentTextOutput, error) {
			return &textract.DetectDocumentTextOutput{
				DocumentMetadata: &types.DocumentMetadata{Pages: aws.Int32(1)},
				Blocks: []types.Block{
					{BlockType: types.BlockTypeLine, Id: aws.String("l1"), Text: aws.String("hello")},
				},
			}, nil
		},
		analyzeDocument: func(in *textract.AnalyzeDocumentInput) (*textract.AnalyzeDocumentOutput, error) {
			if len(in.FeatureTypes) != 1 || in.FeatureTypes[0] != types.FeatureTypeTables {
				t.Errorf("feature types = %v", in.FeatureTypes)
			}
			return &textract.AnalyzeDocumentOutput{Blocks: []types.Block{
				{BlockType: types.BlockTypeTable, Id: aws.String("t1")},
			}}, nil
		},
	}
	engine := NewTextractEngine(api, testLogger())

	result, err := engine.ExtractSync(context.Background(), SyncRequest{Bucket: "b", Key: "k.png"})
	if err != nil {
		t.Fatalf("sync detect: %v", err)
	}
	if result.Status != constants.JobStatusSucceeded || len(result.Blocks) != 1 || result.Blocks[0].Text != "hello" {
		t.Fatalf("detect result = %+v", result)
	}

	result, err = engine.ExtractSync(context.Background(), SyncRequest{Bucket: "b", Key: "k.pdf", Features: []string{"TABLES"}})
	if err != nil {
		t.Fatalf("sync analyze: %v", err)
	}
	if len(result.Blocks) != 1 || result.Blocks[0].Type != "TABLE" {
		t.Fatalf("analyze result = %+v", result)
	}
}
