// Package student содержит доменную модель студента для подбора учебных партнёров.
//
// Пакет определяет:
//
//   - Сущности: Profile (снимок прогресса) и MatchingPreferences (настройки подбора)
//   - Value Objects: AgeGroup, TimeSlot, LearningStyle, CommunicationPreference
//   - Вычисляемый темп обучения: CalculatePace, PacedProfile
//   - Интерфейсы репозиториев: ProfileRepository, PreferencesRepository, ActivityRepository
//
// # Архитектурные принципы
//
//  1. Нулевые внешние зависимости - только стандартная библиотека Go
//  2. Dependency Inversion - интерфейсы реализуются в infrastructure/persistence
//  3. Профиль и настройки только читаются ядром подбора; изменяет их сам студент
//
// # Темп обучения
//
// Темп не хранится, а пересчитывается на каждый запрос из истории просмотров:
//
//	pace := CalculatePace(completedVideos, profile.CreatedAt, time.Now())
//	paced := PacedProfile{Profile: *profile, VideosPerWeek: pace}
//
// # Возрастные группы
//
// AgeGroup используется только для правила безопасности: студенты младше
// открытой группы "22+" подбираются только внутри своей группы.
package student
