package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryForName(t *testing.T) {
	tests := []struct {
		name     string
		category string
		wantErr  bool
	}{
		{name: "photo.jpg", category: CategoryImage},
		{name: "PHOTO.JPG", category: CategoryImage},
		{name: "clip.mp4", category: CategoryVideo},
		{name: "movie.mkv", category: CategoryVideo},
		{name: "song.mp3", category: CategoryAudio},
		{name: "notes.pdf", category: CategoryDocument},
		{name: "archive.tar.gz", wantErr: true},
		{name: "binary.exe", wantErr: true},
		{name: "noextension", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CategoryForName(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.category, got)
		})
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".mp4", Extension("Clip.MP4"))
	assert.Equal(t, "", Extension("noextension"))
}
