package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"fraudd/internal/common/fsutil"
	"fraudd/internal/model"
)

const (
	artifactsProxyPrefix = "/api/2.0/mlflow-artifacts/artifacts"
	proxyScheme          = "mlflow-artifacts:"
	maxArtifactDepth     = 8
)

// LoadArtifact resolves loc to an artifact location, materializes it locally
// and loads it as a model handle.
func (c *MLflowClient) LoadArtifact(ctx context.Context, loc Locator) (*model.Handle, error) {
	uri, err := c.artifactURI(ctx, loc)
	if err != nil {
		return nil, err
	}
	dir, created, err := c.materialize(ctx, uri)
	if err != nil {
		return nil, err
	}
	h, err := model.Load(dir, loc.String())
	if err != nil {
		if created != "" {
			_ = os.RemoveAll(created)
		}
		return nil, err
	}
	c.log.Debug().Str("locator", loc.String()).Str("uri", uri).Str("flavor", h.Flavor()).Msg("artifact loaded")
	return h, nil
}

// artifactURI maps a locator to the storage URI of its artifact.
func (c *MLflowClient) artifactURI(ctx context.Context, loc Locator) (string, error) {
	switch loc.Kind {
	case KindRunArtifact:
		run, err := c.getRun(ctx, loc.RunID)
		if err != nil {
			return "", err
		}
		if run.ArtifactURI == "" {
			return "", fmt.Errorf("run %s has no artifact uri", loc.RunID)
		}
		return strings.TrimRight(run.ArtifactURI, "/") + "/" + strings.TrimLeft(loc.ArtifactPath, "/"), nil
	case KindRegistryNamed:
		version := loc.StageOrVersion
		if !loc.IsVersion() {
			versions, err := c.latestVersions(ctx, loc.Name, []string{loc.StageOrVersion})
			if err != nil {
				return "", err
			}
			if len(versions) == 0 {
				return "", fmt.Errorf("no version of model %q in stage %q", loc.Name, loc.StageOrVersion)
			}
			version = versions[0].Version
		}
		return c.downloadURI(ctx, loc.Name, version)
	default:
		if strings.TrimSpace(loc.Path) == "" {
			return "", fmt.Errorf("empty model location")
		}
		return loc.Path, nil
	}
}

// materialize returns a local path holding the artifact at uri, downloading
// it through the tracking server's artifact proxy when needed. created is the
// cache directory made for the download, empty for local artifacts.
func (c *MLflowClient) materialize(ctx context.Context, uri string) (local, created string, err error) {
	if strings.HasPrefix(uri, runsScheme) {
		// registry sources may point back at a run
		loc := ParseLocator(uri)
		if loc.Kind != KindRunArtifact {
			return "", "", fmt.Errorf("malformed run uri %q", uri)
		}
		resolved, err := c.artifactURI(ctx, loc)
		if err != nil {
			return "", "", err
		}
		uri = resolved
	}
	if p, ok, err := fsutil.LocalPath(uri); err != nil {
		return "", "", err
	} else if ok {
		if _, err := os.Stat(p); err != nil {
			return "", "", fmt.Errorf("model artifact %s: %w", p, err)
		}
		return p, "", nil
	}
	proxyPath, ok := c.proxyPath(uri)
	if !ok {
		return "", "", unsupportedURIError{uri: uri}
	}
	return c.download(ctx, proxyPath)
}

// proxyPath extracts the artifact-proxy relative path from an
// mlflow-artifacts: URI or a full proxy URL on this tracking server.
func (c *MLflowClient) proxyPath(uri string) (string, bool) {
	if strings.HasPrefix(uri, proxyScheme) {
		u, err := url.Parse(uri)
		if err != nil {
			return "", false
		}
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		return strings.Trim(p, "/"), true
	}
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		if i := strings.Index(uri, artifactsProxyPrefix+"/"); i >= 0 {
			return strings.Trim(uri[i+len(artifactsProxyPrefix):], "/"), true
		}
	}
	return "", false
}

// download copies the artifact tree rooted at proxyPath into a fresh
// directory under the cache dir. It returns the model path and that directory.
func (c *MLflowClient) download(ctx context.Context, proxyPath string) (string, string, error) {
	if c.cacheDir != "" {
		if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
			return "", "", fmt.Errorf("create cache dir: %w", err)
		}
	}
	dest, err := os.MkdirTemp(c.cacheDir, "artifact-")
	if err != nil {
		return "", "", fmt.Errorf("create artifact dir: %w", err)
	}
	files, err := c.listProxy(ctx, proxyPath)
	if err != nil {
		_ = os.RemoveAll(dest)
		return "", "", err
	}
	if len(files) == 0 {
		// a single file artifact, e.g. model.onnx
		target := filepath.Join(dest, path.Base(proxyPath))
		if err := c.fetchFile(ctx, proxyPath, target); err != nil {
			_ = os.RemoveAll(dest)
			return "", "", err
		}
		return target, dest, nil
	}
	if err := c.downloadTree(ctx, proxyPath, dest, files, 0); err != nil {
		_ = os.RemoveAll(dest)
		return "", "", err
	}
	return dest, dest, nil
}

func (c *MLflowClient) downloadTree(ctx context.Context, remote, local string, files []fileInfoJSON, depth int) error {
	if depth > maxArtifactDepth {
		return fmt.Errorf("artifact tree %s is deeper than %d levels", remote, maxArtifactDepth)
	}
	for _, f := range files {
		name := path.Base(f.Path)
		if name == "" || name == "." || name == ".." || name == "/" {
			continue
		}
		childRemote := remote + "/" + name
		childLocal := filepath.Join(local, name)
		if !f.IsDir {
			if err := c.fetchFile(ctx, childRemote, childLocal); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(childLocal, 0o755); err != nil {
			return err
		}
		children, err := c.listProxy(ctx, childRemote)
		if err != nil {
			return err
		}
		if err := c.downloadTree(ctx, childRemote, childLocal, children, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (c *MLflowClient) listProxy(ctx context.Context, proxyPath string) ([]fileInfoJSON, error) {
	var resp struct {
		Files []fileInfoJSON `json:"files"`
	}
	if err := c.call(ctx, http.MethodGet, artifactsProxyPrefix, url.Values{"path": {proxyPath}}, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

func (c *MLflowClient) fetchFile(ctx context.Context, proxyPath, target string) error {
	if c.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.reqTimeout)
		defer cancel()
	}
	req, err := c.newRequest(ctx, http.MethodGet, artifactsProxyPrefix+"/"+escapePath(proxyPath), nil, nil)
	if err != nil {
		return err
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("download %s: %w", proxyPath, err)
	}
	return f.Close()
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
