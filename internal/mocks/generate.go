package mocks

//go:generate mockery --name SnapshotStore --srcpkg github.com/epione-lab/project-epione/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
