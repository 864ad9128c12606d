package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/joseph-ayodele/docpipe/constants"
)

// TextractAPI is the slice of the service client the engine uses.
type TextractAPI interface {
	StartDocumentTextDetection(ctx context.Context, params *textract.StartDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error)
	StartDocumentAnalysis(ctx context.Context, params *textract.StartDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.StartDocumentAnalysisOutput, error)
	GetDocumentTextDetection(ctx context.Context, params *textract.GetDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error)
	GetDocumentAnalysis(ctx context.Context, params *textract.GetDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.GetDocumentAnalysisOutput, error)
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
	AnalyzeDocument(ctx context.Context, params *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
}

// NewTextractClient builds the service client, honoring an endpoint override.
func NewTextractClient(awsCfg aws.Config, endpoint string) *textract.Client {
	return textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// TextractEngine implements Engine on AWS Textract. Feature requests pick the
// API family: any feature means the analysis APIs, none means plain text
// detection.
type TextractEngine struct {
	api    TextractAPI
	logger *slog.Logger
}

func NewTextractEngine(api TextractAPI, logger *slog.Logger) *TextractEngine {
	return &TextractEngine{api: api, logger: logger}
}

func (e *TextractEngine) StartAsync(ctx context.Context, req AsyncRequest) (string, error) {
	location := &types.DocumentLocation{
		S3Object: &types.S3Object{
			Bucket: aws.String(req.Bucket),
			Name:   aws.String(req.Key),
		},
	}
	var notify *types.NotificationChannel
	if req.TopicARN != "" {
		notify = &types.NotificationChannel{
			SNSTopicArn: aws.String(req.TopicARN),
			RoleArn:     aws.String(req.RoleARN),
		}
	}
	var token *string
	if req.RequestToken != "" {
		token = aws.String(req.RequestToken)
	}

	var jobID string
	if constants.NeedsAnalysis(req.Features) {
		out, err := e.api.StartDocumentAnalysis(ctx, &textract.StartDocumentAnalysisInput{
			DocumentLocation:    location,
			FeatureTypes:        featureTypes(req.Features),
			NotificationChannel: notify,
			ClientRequestToken:  token,
		})
		if err != nil {
			return "", wrapErr("start document analysis", err)
		}
		jobID = aws.ToString(out.JobId)
	} else {
		out, err := e.api.StartDocumentTextDetection(ctx, &textract.StartDocumentTextDetectionInput{
			DocumentLocation:    location,
			NotificationChannel: notify,
			ClientRequestToken:  token,
		})
		if err != nil {
			return "", wrapErr("start document text detection", err)
		}
		jobID = aws.ToString(out.JobId)
	}

	e.logger.Info("extract.async.start", "bucket", req.Bucket, "key", req.Key,
		"features", req.Features, "textract_job_id", jobID)
	return jobID, nil
}

// resultPage normalizes one page of either Get API.
type resultPage struct {
	status        types.JobStatus
	statusMessage string
	blocks        []types.Block
	warnings      []types.Warning
	pages         int32
	next          *string
}

// FetchResult drains every result page for a settled engine job. When the
// engine still reports IN_PROGRESS the partial fetch stops at page one and
// the caller polls again.
func (e *TextractEngine) FetchResult(ctx context.Context, jobID string, features []string) (*EngineResult, error) {
	fetch := func(next *string) (resultPage, error) {
		if constants.NeedsAnalysis(features) {
			out, err := e.api.GetDocumentAnalysis(ctx, &textract.GetDocumentAnalysisInput{
				JobId:     aws.String(jobID),
				NextToken: next,
			})
			if err != nil {
				return resultPage{}, wrapErr("get document analysis", err)
			}
			return resultPage{
				status:        out.JobStatus,
				statusMessage: aws.ToString(out.StatusMessage),
				blocks:        out.Blocks,
				warnings:      out.Warnings,
				pages:         metadataPages(out.DocumentMetadata),
				next:          out.NextToken,
			}, nil
		}
		out, err := e.api.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
			JobId:     aws.String(jobID),
			NextToken: next,
		})
		if err != nil {
			return resultPage{}, wrapErr("get document text detection", err)
		}
		return resultPage{
			status:        out.JobStatus,
			statusMessage: aws.ToString(out.StatusMessage),
			blocks:        out.Blocks,
			warnings:      out.Warnings,
			pages:         metadataPages(out.DocumentMetadata),
			next:          out.NextToken,
		}, nil
	}

	result := &EngineResult{}
	var next *string
	for {
		page, err := fetch(next)
		if err != nil {
			return nil, err
		}

		status := engineStatus(page.status)
		if next == nil {
			result.Status = status
			result.StatusMessage = page.statusMessage
			if status == constants.JobStatusInProgress {
				return result, nil
			}
		}
		if page.pages > 0 {
			result.Pages = page.pages
		}
		result.Blocks = append(result.Blocks, convertBlocks(page.blocks)...)
		for _, w := range page.warnings {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: pages %v", aws.ToString(w.ErrorCode), w.Pages))
		}

		if page.next == nil {
			break
		}
		next = page.next
	}

	e.logger.Info("extract.fetch", "textract_job_id", jobID, "status", result.Status,
		"blocks", len(result.Blocks), "warnings", len(result.Warnings))
	return result, nil
}

func (e *TextractEngine) ExtractSync(ctx context.Context, req SyncRequest) (*EngineResult, error) {
	document := &types.Document{
		S3Object: &types.S3Object{
			Bucket: aws.String(req.Bucket),
			Name:   aws.String(req.Key),
		},
	}

	var blocks []types.Block
	var pages int32
	if constants.NeedsAnalysis(req.Features) {
		out, err := e.api.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
			Document:     document,
			FeatureTypes: featureTypes(req.Features),
		})
		if err != nil {
			return nil, wrapErr("analyze document", err)
		}
		blocks = out.Blocks
		pages = metadataPages(out.DocumentMetadata)
	} else {
		out, err := e.api.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
			Document: document,
		})
		if err != nil {
			return nil, wrapErr("detect document text", err)
		}
		blocks = out.Blocks
		pages = metadataPages(out.DocumentMetadata)
	}

	result := &EngineResult{
		Status: constants.JobStatusSucceeded,
		Pages:  pages,
		Blocks: convertBlocks(blocks),
	}
	e.logger.Info("extract.sync", "bucket", req.Bucket, "key", req.Key,
		"features", req.Features, "blocks", len(result.Blocks))
	return result, nil
}

func featureTypes(features []string) []types.FeatureType {
	out := make([]types.FeatureType, 0, len(features))
	for _, f := range features {
		out = append(out, types.FeatureType(f))
	}
	return out
}

func metadataPages(md *types.DocumentMetadata) int32 {
	if md == nil {
		return 0
	}
	return aws.ToInt32(md.Pages)
}

func engineStatus(s types.JobStatus) constants.JobStatus {
	switch s {
	case types.JobStatusInProgress:
		return constants.JobStatusInProgress
	case types.JobStatusSucceeded:
		return constants.JobStatusSucceeded
	case types.JobStatusPartialSuccess:
		return constants.JobStatusPartialSuccess
	default:
		return constants.JobStatusFailed
	}
}

func convertBlocks(in []types.Block) []Block {
	out := make([]Block, 0, len(in))
	for _, b := range in {
		nb := Block{
			ID:              aws.ToString(b.Id),
			Type:            string(b.BlockType),
			Text:            aws.ToString(b.Text),
			Confidence:      aws.ToFloat32(b.Confidence),
			Page:            aws.ToInt32(b.Page),
			RowIndex:        aws.ToInt32(b.RowIndex),
			ColumnIndex:     aws.ToInt32(b.ColumnIndex),
			SelectionStatus: string(b.SelectionStatus),
		}
		for _, et := range b.EntityTypes {
			nb.EntityTypes = append(nb.EntityTypes, string(et))
		}
		for _, rel := range b.Relationships {
			switch rel.Type {
			case types.RelationshipTypeChild:
				nb.ChildIDs = append(nb.ChildIDs, rel.Ids...)
			case types.RelationshipTypeValue:
				nb.ValueIDs = append(nb.ValueIDs, rel.Ids...)
			}
		}
		out = append(out, nb)
	}
	return out
}
