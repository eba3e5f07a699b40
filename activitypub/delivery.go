package activitypub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/deemkeen/vidodon/domain"
	"github.com/deemkeen/vidodon/util"
	"golang.org/x/sync/errgroup"
)

// DeliveryOutcome partitions the destinations of one delivery batch into
// inboxes that accepted the activity (2xx) and inboxes that did not
// (network error, timeout or non-2xx). The caller forwards the partition to
// the health cache.
type DeliveryOutcome struct {
	Good []string
	Bad  []string
}

// Deliverer ships signed activities to remote inboxes. It keeps no state
// between calls, so a broadcast job that failed halfway is safe to re-run.
type Deliverer struct {
	client *http.Client
	conf   *util.AppConfig
}

func NewDeliverer(conf *util.AppConfig) *Deliverer {
	return &Deliverer{
		client: &http.Client{Timeout: time.Duration(conf.Conf.RequestTimeoutSec) * time.Second},
		conf:   conf,
	}
}

// buildRequest creates the canonical signed POST for one inbox. The body and
// parsed key are shared across all destinations of a batch; only the
// per-destination request envelope differs.
func (d *Deliverer) buildRequest(ctx context.Context, inboxUrl string, body []byte, signer *domain.Actor) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", inboxUrl, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", ComputeDigest(body))

	privateKey, err := ParsePrivateKey(signer.PrivateKeyPem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key of %s: %w", signer.Url, err)
	}

	keyId := signer.Url + "#main-key"
	if err := SignRequest(req, privateKey, keyId, nil); err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	return req, nil
}

// errRequestBuild marks a request that could not be constructed before any
// network traffic happened. Such failures are local, not remote outcomes.
var errRequestBuild = errors.New("request construction failed")

// deliverOne posts the signed body to one inbox. Errors wrapping
// errRequestBuild are local failures; everything else is a bad remote
// outcome.
func (d *Deliverer) deliverOne(ctx context.Context, inboxUrl string, body []byte, signer *domain.Actor) error {
	req, err := d.buildRequest(ctx, inboxUrl, body, signer)
	if err != nil {
		return fmt.Errorf("%w for %s: %v", errRequestBuild, inboxUrl, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	return nil
}

// checkSigner validates signing material once per batch; an unusable key is
// a local error that aborts the whole batch instead of poisoning outcomes.
func (d *Deliverer) checkSigner(signer *domain.Actor) error {
	if _, err := ParsePrivateKey(signer.PrivateKeyPem); err != nil {
		return fmt.Errorf("signing actor %s has no usable private key: %w", signer.Url, err)
	}
	return nil
}

// DeliverSequential posts the activity to each inbox in order. Used for
// low-volume, ordered cases. Bad remote outcomes are recorded and delivery
// continues; only local errors abort the batch.
func (d *Deliverer) DeliverSequential(ctx context.Context, body []byte, signer *domain.Actor, inboxUrls []string) (DeliveryOutcome, error) {
	var outcome DeliveryOutcome

	if err := d.checkSigner(signer); err != nil {
		return outcome, err
	}

	for _, inboxUrl := range inboxUrls {
		if err := d.deliverOne(ctx, inboxUrl, body, signer); err != nil {
			if errors.Is(err, errRequestBuild) {
				return outcome, err
			}
			outcome.Bad = append(outcome.Bad, inboxUrl)
		} else {
			outcome.Good = append(outcome.Good, inboxUrl)
		}
	}

	return outcome, nil
}

// DeliverParallel fans the activity out to all inboxes with bounded
// concurrency. Deliveries to distinct inboxes are independent; the shared
// outcome is the only synchronized state.
func (d *Deliverer) DeliverParallel(ctx context.Context, body []byte, signer *domain.Actor, inboxUrls []string) (DeliveryOutcome, error) {
	var outcome DeliveryOutcome

	if err := d.checkSigner(signer); err != nil {
		return outcome, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.conf.Conf.FanoutConcurrency)

	for _, inboxUrl := range inboxUrls {
		g.Go(func() error {
			err := d.deliverOne(gctx, inboxUrl, body, signer)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcome.Bad = append(outcome.Bad, inboxUrl)
			} else {
				outcome.Good = append(outcome.Good, inboxUrl)
			}
			return nil
		})
	}

	g.Wait()
	return outcome, nil
}

// FetchObject GETs a remote ActivityPub object. Returns the body and status
// code; transport failures return an error. This is the fetch primitive the
// staleness refresher and actor resolution build on.
func (d *Deliverer) FetchObject(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	return body, resp.StatusCode, nil
}
