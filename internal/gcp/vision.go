package gcp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/encoding/protojson"
)

// VisionOCR runs asynchronous document text detection against objects staged
// in the object store. Result shards are written by the backend under an
// output prefix in the same bucket and collected after the job completes.
type VisionOCR struct {
	annotator *vision.ImageAnnotatorClient
	objects   *ObjectStore
}

// NewVisionOCR creates the OCR adapter on top of an existing object store.
func NewVisionOCR(ctx context.Context, objects *ObjectStore) (*VisionOCR, error) {
	annotator, err := vision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &VisionOCR{annotator: annotator, objects: objects}, nil
}

// StartTextDetection submits an async text-detection job for the staged PDF
// and returns the job identifier used for polling.
func (v *VisionOCR) StartTextDetection(ctx context.Context, bucket, inputKey, outputPrefix string) (string, error) {
	req := &visionpb.AsyncBatchAnnotateFilesRequest{
		Requests: []*visionpb.AsyncAnnotateFileRequest{{
			InputConfig: &visionpb.InputConfig{
				GcsSource: &visionpb.GcsSource{Uri: fmt.Sprintf("gs://%s/%s", bucket, inputKey)},
				MimeType:  "application/pdf",
			},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
			OutputConfig: &visionpb.OutputConfig{
				GcsDestination: &visionpb.GcsDestination{Uri: fmt.Sprintf("gs://%s/%s", bucket, outputPrefix)},
				BatchSize:      20,
			},
		}},
	}
	op, err := v.annotator.AsyncBatchAnnotateFiles(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to start text detection: %w", err)
	}
	return op.Name(), nil
}

// PollTextDetection reports whether the job has finished. A finished job
// that failed reports its failure through the returned error.
func (v *VisionOCR) PollTextDetection(ctx context.Context, jobID string) (bool, error) {
	op := v.annotator.AsyncBatchAnnotateFilesOperation(jobID)
	if _, err := op.Poll(ctx); err != nil {
		return false, fmt.Errorf("text detection job %s failed: %w", jobID, err)
	}
	return op.Done(), nil
}

// CollectText reads every result shard under the output prefix in key order
// and joins the per-page text with newlines. Shards are fetched with bounded
// concurrency; assembly order follows the shard listing.
func (v *VisionOCR) CollectText(ctx context.Context, bucket, outputPrefix string) (string, error) {
	shards, err := v.objects.ListPrefix(ctx, bucket, outputPrefix)
	if err != nil {
		return "", err
	}
	if len(shards) == 0 {
		return "", fmt.Errorf("no text detection output under gs://%s/%s", bucket, outputPrefix)
	}

	pages := make([][]string, len(shards))
	var mu sync.Mutex
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for i, shard := range shards {
		eg.Go(func() error {
			data, err := v.objects.Get(gctx, bucket, shard.Key)
			if err != nil {
				return err
			}
			var fileResp visionpb.AnnotateFileResponse
			if err := protojson.Unmarshal(data, &fileResp); err != nil {
				return fmt.Errorf("failed to decode shard %s: %w", shard.Key, err)
			}
			var shardPages []string
			for _, resp := range fileResp.GetResponses() {
				if annotation := resp.GetFullTextAnnotation(); annotation != nil {
					shardPages = append(shardPages, strings.TrimRight(annotation.GetText(), "\n"))
				}
			}
			mu.Lock()
			pages[i] = shardPages
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return "", err
	}

	var all []string
	for _, shardPages := range pages {
		all = append(all, shardPages...)
	}
	return strings.Join(all, "\n"), nil
}

// Close releases the underlying vision client.
func (v *VisionOCR) Close() error {
	return v.annotator.Close()
}
