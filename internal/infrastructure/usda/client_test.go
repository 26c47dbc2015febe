package usda

import (
	"archive/zip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foodbase/etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const downloadsPage = `<html><body>
<table class="table downloads_table">
  <tr><th>Data Type</th><th>Format</th><th>Link</th></tr>
  <tr>
    <td><strong>Foundation Foods</strong></td><td>CSV</td>
    <td><a href="/fdc-datasets/FoodData_Central_foundation_food_csv_2024-10-31.zip">Download</a></td>
  </tr>
  <tr>
    <td><strong>Full Download of
      All Data Types</strong></td><td>CSV</td>
    <td><a href="/fdc-datasets/FoodData_Central_csv_2024-10-31.zip">Download</a></td>
  </tr>
</table>
</body></html>`

func TestNewClient(t *testing.T) {
	client := NewClient("https://fdc.example.com/download-datasets.html", "https://fdc.example.com")

	assert.NotNil(t, client)
	assert.Equal(t, "https://fdc.example.com/download-datasets.html", client.pageURL)
	assert.Equal(t, "https://fdc.example.com", client.baseURL)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.rateLimiter)
	assert.False(t, client.debug)
}

func TestSetDebug(t *testing.T) {
	client := NewClient("https://fdc.example.com", "https://fdc.example.com")

	assert.False(t, client.debug)

	client.SetDebug(true)
	assert.True(t, client.debug)

	client.SetDebug(false)
	assert.False(t, client.debug)
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1000 * time.Millisecond},
		{3, 2000 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			result := exponentialBackoff(tt.attempt)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestFindDatasetURL_DownloadsTable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/download-datasets.html", r.URL.Path)
		assert.Equal(t, "foodetl/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte(downloadsPage))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/download-datasets.html", "https://fdc.nal.usda.gov")
	link, err := client.FindDatasetURL(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "https://fdc.nal.usda.gov/fdc-datasets/FoodData_Central_csv_2024-10-31.zip", link)
}

func TestFindDatasetURL_PatternFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<div><a class="btn" href="/fdc-datasets/FoodData_Central_csv_2025-04-24.zip">CSV</a></div>`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "https://fdc.nal.usda.gov")
	client.SetDebug(true)
	link, err := client.FindDatasetURL(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "https://fdc.nal.usda.gov/fdc-datasets/FoodData_Central_csv_2025-04-24.zip", link)
}

func TestFindDatasetURL_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>maintenance</body></html>`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL)
	_, err := client.FindDatasetURL(context.Background())

	assert.ErrorIs(t, err, domain.ErrDatasetNotFound)
}

func TestFindDatasetURL_PageMissing(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL)
	_, err := client.FindDatasetURL(context.Background())

	assert.ErrorIs(t, err, domain.ErrDatasetNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "404 must not be retried")
}

func TestDownload_RetriesTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("archive-bytes"))
	}))
	defer server.Close()

	dir := t.TempDir()
	client := NewClient(server.URL, server.URL)
	path, err := client.Download(context.Background(), server.URL+"/fdc-datasets/FoodData_Central_csv_2024-10-31.zip", dir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "FoodData_Central_csv_2024-10-31.zip"), path)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownload_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL, server.URL)
	_, err := client.Download(ctx, server.URL+"/data.zip", t.TempDir())
	assert.Error(t, err)
}

// writeArchive builds a zip holding the given files under a nested folder
func writeArchive(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "FoodData_Central_csv_2024-10-31.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	_, err = zw.Create("FoodData_Central_csv_2024-10-31/")
	require.NoError(t, err)
	for name, content := range files {
		w, err := zw.Create("FoodData_Central_csv_2024-10-31/" + name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func allTables() map[string]string {
	files := map[string]string{"Documentation.pdf": "pdf"}
	for _, name := range domain.SourceTableNames {
		files[name] = fmt.Sprintf("header for %s\n", name)
	}
	return files
}

func TestExtractTables(t *testing.T) {
	dir := t.TempDir()
	archive := writeArchive(t, dir, allTables())

	files, err := ExtractTables(archive, dir, domain.SourceTableNames)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFilesIn(dir), files)

	data, err := os.ReadFile(files.FoodNutrient)
	require.NoError(t, err)
	assert.Equal(t, "header for food_nutrient.csv\n", string(data))

	_, err = os.Stat(archive)
	assert.True(t, os.IsNotExist(err), "archive should be removed after a complete extraction")
	_, err = os.Stat(filepath.Join(dir, "Documentation.pdf"))
	assert.True(t, os.IsNotExist(err), "only the source tables are extracted")
}

func TestExtractTables_MissingTableKeepsArchive(t *testing.T) {
	dir := t.TempDir()
	files := allTables()
	delete(files, "nutrient.csv")
	archive := writeArchive(t, dir, files)

	_, err := ExtractTables(archive, dir, domain.SourceTableNames)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingTable)
	assert.Contains(t, err.Error(), "nutrient.csv")

	_, err = os.Stat(archive)
	assert.NoError(t, err, "archive must be kept for inspection")
}

func TestFetchTables(t *testing.T) {
	archiveDir := t.TempDir()
	archive := writeArchive(t, archiveDir, allTables())
	archiveBytes, err := os.ReadFile(archive)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/download-datasets.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(downloadsPage))
	})
	mux.HandleFunc("/fdc-datasets/FoodData_Central_csv_2024-10-31.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archiveBytes)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	dest := t.TempDir()
	client := NewClient(server.URL+"/download-datasets.html", server.URL)
	files, err := client.FetchTables(context.Background(), dest)

	require.NoError(t, err)
	for _, p := range []string{files.BrandedFood, files.Food, files.Nutrient, files.FoodNutrient} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
}
