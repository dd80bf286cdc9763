// Package imagecheck resolves the newest base image tag matching a semver
// policy against the registry, so rebuilds can pin a concrete builder version
// instead of a mutable tag.
package imagecheck

import (
	"context"
	"fmt"
	"sort"

	mvc "github.com/Masterminds/semver/v3"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

type Resolver struct {
	// relies on standard docker config (~/.docker/config.json) for registry auth
	keychain authn.Keychain
}

func NewResolver() *Resolver {
	return &Resolver{
		keychain: authn.DefaultKeychain,
	}
}

// Resolve returns the best matching tag for the image based on the policy.
// image: "caddy", policy: "2.x" or "^2.7"
// Returns: "2.8.4" (if that is the newest matching tag)
func (r *Resolver) Resolve(ctx context.Context, image string, policy string) (string, error) {
	ref, err := name.ParseReference(image)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	repo := ref.Context()

	tags, err := remote.List(repo, remote.WithAuthFromKeychain(r.keychain), remote.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to list tags for %s: %w", repo.Name(), err)
	}

	tag, err := BestMatch(tags, policy)
	if err != nil {
		return "", fmt.Errorf("%s: %w", repo.Name(), err)
	}
	return tag, nil
}

// BestMatch returns the highest tag among candidates satisfying the policy
// constraint. Non-semver tags (e.g. "latest", "alpine") are skipped. The
// returned string preserves the registry's exact tag spelling (e.g. a "v"
// prefix).
func BestMatch(tags []string, policy string) (string, error) {
	constraint, err := mvc.NewConstraint(policy)
	if err != nil {
		return "", fmt.Errorf("invalid semver policy %q: %w", policy, err)
	}

	var versions []*mvc.Version
	originalTags := make(map[string]string)
	for _, t := range tags {
		v, err := mvc.NewVersion(t)
		if err != nil {
			continue
		}
		if constraint.Check(v) {
			versions = append(versions, v)
			originalTags[v.Original()] = t
		}
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("no tags found matching policy %q", policy)
	}

	sort.Sort(mvc.Collection(versions))
	highest := versions[len(versions)-1]

	tag := originalTags[highest.Original()]
	if tag == "" {
		tag = highest.Original()
	}
	return tag, nil
}
