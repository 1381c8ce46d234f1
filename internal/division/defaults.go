package division

// 登録済みディビジョンの名前。
const (
	NameSample = "sample"
	NameWu     = "wu"
	NameHSS    = "hss"
	NameGerok  = "gerok"
)

// NewDefaultRegistry は4つの寮ネットワークを固定順で登録したRegistryを返す。
// sampleは設定のデモユーザーを、それ以外はLDAP+データベースを使う。
func NewDefaultRegistry(fallback string, samples []SampleUser, directory Directory, store UsageStore) (*Registry, error) {
	return NewRegistry(fallback,
		&Division{
			Name:        NameSample,
			DisplayName: "Beispielsektion",
			Backend:     NewSampleBackend(NameSample, samples),
		},
		&Division{
			Name:        NameWu,
			DisplayName: "Wundtstraße & Zeunerstraße",
			Backend:     NewDirectoryBackend(NameWu, directory, store),
		},
		&Division{
			Name:        NameHSS,
			DisplayName: "Hochschulstraße",
			Backend:     NewDirectoryBackend(NameHSS, directory, store),
		},
		&Division{
			Name:        NameGerok,
			DisplayName: "Gerokstraße",
			Backend:     NewDirectoryBackend(NameGerok, directory, store),
		},
	)
}
