package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docker/docker/client"
	"github.com/google/go-containerregistry/pkg/name"
)

// DefaultDockerURL is the engine API endpoint used when none is given. It is
// the docker0 bridge address as seen from inside a CI container.
const DefaultDockerURL = "http://172.17.42.1:2375"

// missingLayerID is what the engine reports for history entries whose layer
// was not built locally.
const missingLayerID = "<missing>"

// ImageLayers returns the layer identifiers from the image's history, in the
// order the engine lists them.
func ImageLayers(ctx context.Context, dockerURL, image string) ([]string, error) {
	if _, err := name.ParseReference(image); err != nil {
		return nil, fmt.Errorf("invalid image reference '%s': %w", image, err)
	}

	host, scheme := engineEndpoint(dockerURL)
	opts := []client.Opt{
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	}
	if scheme != "" {
		opts = append(opts, client.WithScheme(scheme))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client for %s: %w", dockerURL, err)
	}
	defer func() {
		_ = cli.Close()
	}()

	history, err := cli.ImageHistory(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("couldn't get image history for '%s': %w", image, err)
	}

	layers := make([]string, 0, len(history))
	for _, item := range history {
		if item.ID == "" || item.ID == missingLayerID {
			slog.Debug("skipping history entry without layer", "created_by", item.CreatedBy)
			continue
		}
		layers = append(layers, item.ID)
	}
	return layers, nil
}

// engineEndpoint converts an http:// or https:// endpoint into the tcp://
// host the docker client expects, plus the scheme to speak over it. An empty
// scheme leaves the client default in place. Other forms (unix://, tcp://)
// pass through unchanged.
func engineEndpoint(dockerURL string) (host, scheme string) {
	if rest, ok := strings.CutPrefix(dockerURL, "https://"); ok {
		return "tcp://" + rest, "https"
	}
	if rest, ok := strings.CutPrefix(dockerURL, "http://"); ok {
		return "tcp://" + rest, ""
	}
	return dockerURL, ""
}
